package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Settlement is one archived flash.settled event. Amounts are kept as
// decimal strings so 256-bit values survive every SQL backend.
type Settlement struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Protocol       uint64    `gorm:"index"`
	Amount         string    `gorm:"size:80;not null"`
	ProtocolFee    string    `gorm:"size:80;not null"`
	ServiceFee     string    `gorm:"size:80;not null"`
	TotalRepayment string    `gorm:"size:80;not null"`
	RecordedAt     time.Time `gorm:"index"`
}

// ConfigChange is one archived flash.config_updated or
// flash.adapter_registered event.
type ConfigChange struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind       string    `gorm:"size:64;index"`
	Field      string    `gorm:"size:64"`
	Value      string    `gorm:"size:512"`
	RecordedAt time.Time `gorm:"index"`
}

// AutoMigrate performs all schema migrations for the archive.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Settlement{},
		&ConfigChange{},
	)
}

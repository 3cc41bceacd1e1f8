// Package indexer archives committed settlement events in a SQL database so
// they can be queried after the fact.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"flashsettle/core/events"
)

const maxRecent = 500

// ErrTotalOverflow is returned when an aggregate exceeds 256 bits.
var ErrTotalOverflow = errors.New("indexer: total overflows 256 bits")

// ProtocolTotal aggregates the archived settlements of one protocol.
type ProtocolTotal struct {
	Protocol    uint64
	Count       int64
	Volume      *uint256.Int
	ServiceFees *uint256.Int
}

// Indexer implements events.Emitter by writing every committed event to the
// archive.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to dsn. DSNs starting with postgres:// or postgresql:// use
// PostgreSQL; anything else is handed to SQLite.
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: db required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{
		db:     db,
		logger: logger.With(slog.String("component", "indexer")),
		now:    time.Now,
	}, nil
}

// Emit implements events.Emitter. Archive failures are logged and never
// propagate to the settlement path.
func (i *Indexer) Emit(evt events.Event) {
	if err := i.Record(context.Background(), evt); err != nil {
		i.logger.Error("archive event failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Record archives a single event. Unknown event types are ignored.
func (i *Indexer) Record(ctx context.Context, evt events.Event) error {
	now := i.now().UTC()
	switch e := evt.(type) {
	case events.FlashLoanSettled:
		return i.db.WithContext(ctx).Create(&Settlement{
			ID:             uuid.New(),
			Protocol:       e.BackendID,
			Amount:         decimal(e.Amount),
			ProtocolFee:    decimal(e.ProtocolFee),
			ServiceFee:     decimal(e.ServiceFee),
			TotalRepayment: decimal(e.TotalRepayment),
			RecordedAt:     now,
		}).Error
	case events.FlashConfigUpdated:
		return i.db.WithContext(ctx).Create(&ConfigChange{
			ID:         uuid.New(),
			Kind:       e.EventType(),
			Field:      e.Field,
			Value:      e.Value,
			RecordedAt: now,
		}).Error
	case events.FlashAdapterRegistered:
		return i.db.WithContext(ctx).Create(&ConfigChange{
			ID:         uuid.New(),
			Kind:       e.EventType(),
			Field:      fmt.Sprintf("protocol/%d", e.ProtocolID),
			Value:      e.Location,
			RecordedAt: now,
		}).Error
	default:
		return nil
	}
}

// Recent returns up to limit settlements, newest first.
func (i *Indexer) Recent(ctx context.Context, limit int) ([]Settlement, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	var out []Settlement
	err := i.db.WithContext(ctx).Order("recorded_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ConfigHistory returns up to limit configuration changes, newest first.
func (i *Indexer) ConfigHistory(ctx context.Context, limit int) ([]ConfigChange, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	var out []ConfigChange
	err := i.db.WithContext(ctx).Order("recorded_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Totals aggregates archived settlements per protocol. Sums are computed in
// 256-bit arithmetic since the archive stores decimal strings.
func (i *Indexer) Totals(ctx context.Context) ([]ProtocolTotal, error) {
	var rows []Settlement
	if err := i.db.WithContext(ctx).Select("protocol", "amount", "service_fee").Find(&rows).Error; err != nil {
		return nil, err
	}
	byProtocol := make(map[uint64]*ProtocolTotal)
	for _, row := range rows {
		total, ok := byProtocol[row.Protocol]
		if !ok {
			total = &ProtocolTotal{Protocol: row.Protocol, Volume: new(uint256.Int), ServiceFees: new(uint256.Int)}
			byProtocol[row.Protocol] = total
		}
		amount, err := uint256.FromDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("indexer: corrupt amount %q: %w", row.Amount, err)
		}
		fee, err := uint256.FromDecimal(row.ServiceFee)
		if err != nil {
			return nil, fmt.Errorf("indexer: corrupt service fee %q: %w", row.ServiceFee, err)
		}
		total.Count++
		if _, overflow := total.Volume.AddOverflow(total.Volume, amount); overflow {
			return nil, fmt.Errorf("%w: protocol %d volume", ErrTotalOverflow, row.Protocol)
		}
		if _, overflow := total.ServiceFees.AddOverflow(total.ServiceFees, fee); overflow {
			return nil, fmt.Errorf("%w: protocol %d service fees", ErrTotalOverflow, row.Protocol)
		}
	}
	out := make([]ProtocolTotal, 0, len(byProtocol))
	for _, total := range byProtocol {
		out = append(out, *total)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Protocol < out[b].Protocol })
	return out, nil
}

func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

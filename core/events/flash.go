package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"flashsettle/core/types"
)

const (
	// TypeFlashSettled is emitted once per successfully settled flash loan.
	TypeFlashSettled = "flash.settled"
	// TypeFlashConfigUpdated is emitted when an admin mutation changes the
	// settlement configuration.
	TypeFlashConfigUpdated = "flash.config_updated"
	// TypeFlashAdapterRegistered is emitted when the adapter registry gains or
	// repoints an entry.
	TypeFlashAdapterRegistered = "flash.adapter_registered"
)

// FlashLoanSettled is the consumer-facing settlement record. Its attribute
// schema is stable.
type FlashLoanSettled struct {
	BackendID      uint64
	Amount         *uint256.Int
	ProtocolFee    *uint256.Int
	ServiceFee     *uint256.Int
	TotalRepayment *uint256.Int
}

func (FlashLoanSettled) EventType() string { return TypeFlashSettled }

func (e FlashLoanSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashSettled,
		Attributes: map[string]string{
			"backend_id":      strconv.FormatUint(e.BackendID, 10),
			"amount":          decimal(e.Amount),
			"protocol_fee":    decimal(e.ProtocolFee),
			"service_fee":     decimal(e.ServiceFee),
			"total_repayment": decimal(e.TotalRepayment),
		},
	}
}

// FlashConfigUpdated records which configuration field changed and its new
// rendered value.
type FlashConfigUpdated struct {
	Field string
	Value string
}

func (FlashConfigUpdated) EventType() string { return TypeFlashConfigUpdated }

func (e FlashConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashConfigUpdated,
		Attributes: map[string]string{
			"field": strings.TrimSpace(e.Field),
			"value": strings.TrimSpace(e.Value),
		},
	}
}

type FlashAdapterRegistered struct {
	ProtocolID uint64
	Location   string
	Updated    bool
}

func (FlashAdapterRegistered) EventType() string { return TypeFlashAdapterRegistered }

func (e FlashAdapterRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashAdapterRegistered,
		Attributes: map[string]string{
			"protocol_id": strconv.FormatUint(e.ProtocolID, 10),
			"location":    strings.TrimSpace(e.Location),
			"updated":     strconv.FormatBool(e.Updated),
		},
	}
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

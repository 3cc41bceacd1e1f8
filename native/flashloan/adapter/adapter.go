// Package adapter defines the uniform contract every lending back-end exposes
// to the settlement router, together with the fee arithmetic and pool helpers
// shared by the concrete back-ends.
package adapter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flashsettle/core/state"
	"flashsettle/native/bank"
)

// Adapter wraps one lending back-end behind the uniform {fee, borrow, settle}
// contract.
type Adapter interface {
	// Location names the adapter implementation; dispatch resolves protocol
	// ids to locations.
	Location() string
	FeeBps() (uint64, error)
	// Reserve returns the ledger account holding the back-end's liquidity
	// for asset.
	Reserve(asset string) (common.Address, error)
	// Liquidity reports how much of asset the back-end can lend right now.
	Liquidity(asset string) (*uint256.Int, error)
	Borrow(asset string, amount *uint256.Int) (bank.Coin, Ticket, error)
	// Settle consumes the ticket, keeps principal plus fee and returns the
	// excess of repayment.
	Settle(ticket Ticket, repayment bank.Coin) (bank.Coin, error)
	// DecodeTicket rebuilds a concrete ticket from its receipt payload.
	DecodeTicket(payload []byte) (Ticket, error)
}

// Ticket is the linear proof of an outstanding borrow. Every ticket is
// registered as a live resource and must be settled within the same unit.
type Ticket interface {
	Handle() state.ResourceID
	Principal() *uint256.Int
	Fee() *uint256.Int
}

// Receipt is the opaque, serialisable form of a ticket handed to the router.
type Receipt struct {
	Protocol uint64
	Location string
	Payload  []byte
}

// Empty reports whether the receipt carries no ticket.
func (r Receipt) Empty() bool {
	return len(r.Payload) == 0
}

// Ledger is the subset of the bank used by adapters.
type Ledger interface {
	Balance(addr common.Address, asset string) (*uint256.Int, error)
	Withdraw(addr common.Address, asset string, amount *uint256.Int) (bank.Coin, error)
	Deposit(addr common.Address, coin bank.Coin) error
}

// Tracker registers and retires linear resources.
type Tracker interface {
	OpenResource(digest [32]byte) state.ResourceID
	ConsumeResource(id state.ResourceID, digest [32]byte) error
}

package bank

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInsufficientValue   = errors.New("bank: coin value too low")
	ErrCoinSpent           = errors.New("bank: coin already spent")
	ErrInvalidAsset        = errors.New("bank: asset tag required")
)

// Journal records undo steps for the enclosing atomic unit.
type Journal interface {
	Record(undo func())
}

type coinState struct {
	asset   string
	value   uint256.Int
	spent   bool
	journal Journal
}

// checkpoint records the coin's current value and liveness so a reverted
// unit restores them.
func (s *coinState) checkpoint() {
	if s.journal == nil {
		return
	}
	value, spent := s.value, s.spent
	s.journal.Record(func() {
		s.value = value
		s.spent = spent
	})
}

// Coin is an in-flight amount of a single asset. Coins are only minted by the
// Ledger or split from an existing coin; joining or depositing a coin spends
// it. Copies of a Coin share the same underlying value, so a spent coin cannot
// be reused through a copy. Coins issued inside an atomic unit are revoked when
// that unit reverts.
type Coin struct {
	s *coinState
}

func newCoin(j Journal, asset string, value *uint256.Int) Coin {
	st := &coinState{asset: asset, journal: j}
	if value != nil {
		st.value.Set(value)
	}
	if j != nil {
		j.Record(func() {
			st.value.Clear()
			st.spent = true
		})
	}
	return Coin{s: st}
}

// Zero returns an empty coin of the given asset. It adopts the journal of the
// first coin joined into it.
func Zero(asset string) Coin {
	return newCoin(nil, NormalizeAsset(asset), nil)
}

// Valid reports whether the coin exists and has not been spent.
func (c Coin) Valid() bool {
	return c.s != nil && !c.s.spent
}

func (c Coin) Asset() string {
	if c.s == nil {
		return ""
	}
	return c.s.asset
}

// Value returns a copy of the coin's value. Spent coins are worth zero.
func (c Coin) Value() *uint256.Int {
	if !c.Valid() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(&c.s.value)
}

func (c Coin) IsZero() bool {
	return !c.Valid() || c.s.value.IsZero()
}

// Split carves amount out of the coin and returns it as a new coin.
func (c Coin) Split(amount *uint256.Int) (Coin, error) {
	if !c.Valid() {
		return Coin{}, ErrCoinSpent
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	if c.s.value.Lt(amount) {
		return Coin{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientValue, c.s.value.Dec(), amount.Dec())
	}
	c.s.checkpoint()
	c.s.value.Sub(&c.s.value, amount)
	return newCoin(c.s.journal, c.s.asset, amount), nil
}

// Join merges other into c and spends other.
func (c Coin) Join(other Coin) error {
	if !c.Valid() || !other.Valid() {
		return ErrCoinSpent
	}
	if c.s == other.s {
		return fmt.Errorf("bank: cannot join a coin with itself")
	}
	if c.s.asset != other.s.asset {
		return fmt.Errorf("%w: %s into %s", flasherrors.ErrAssetTypeMismatch, other.s.asset, c.s.asset)
	}
	sum, overflow := new(uint256.Int).AddOverflow(&c.s.value, &other.s.value)
	if overflow {
		return flasherrors.ErrAmountOverflow
	}
	if c.s.journal == nil {
		c.s.journal = other.s.journal
	}
	c.s.checkpoint()
	c.s.value.Set(sum)
	other.spend()
	return nil
}

func (c Coin) spend() (string, *uint256.Int) {
	value := new(uint256.Int).Set(&c.s.value)
	c.s.checkpoint()
	c.s.value.Clear()
	c.s.spent = true
	return c.s.asset, value
}

func (c Coin) String() string {
	if c.s == nil {
		return "coin(nil)"
	}
	if c.s.spent {
		return fmt.Sprintf("coin(%s spent)", c.s.asset)
	}
	return fmt.Sprintf("coin(%s %s)", c.s.value.Dec(), c.s.asset)
}

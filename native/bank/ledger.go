package bank

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
)

var (
	balancePrefix = []byte("bank/balance/")
	supplyPrefix  = []byte("bank/supply/")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Journal
}

type amountRecord struct {
	Amount *uint256.Int
}

// Ledger tracks per-account asset balances and converts them to and from
// in-flight coins.
type Ledger struct {
	st ledgerState
}

// NewLedger creates a ledger backed by the provided state.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{st: st}
}

// NormalizeAsset canonicalises asset tags for consistent lookups.
func NormalizeAsset(asset string) string {
	return strings.TrimSpace(asset)
}

func balanceKey(addr common.Address, asset string) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(asset)+1+common.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, asset...)
	buf = append(buf, '/')
	return append(buf, addr.Bytes()...)
}

func supplyKey(asset string) []byte {
	return append(append([]byte(nil), supplyPrefix...), asset...)
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	var rec amountRecord
	ok, err := l.st.KVGet(key, &rec)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount == nil {
		return new(uint256.Int), nil
	}
	return rec.Amount, nil
}

func (l *Ledger) store(key []byte, amount *uint256.Int) error {
	return l.st.KVPut(key, amountRecord{Amount: amount})
}

// Balance returns the amount of asset held by addr.
func (l *Ledger) Balance(addr common.Address, asset string) (*uint256.Int, error) {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return nil, ErrInvalidAsset
	}
	return l.load(balanceKey(addr, asset))
}

// Supply returns the total amount of asset ever minted.
func (l *Ledger) Supply(asset string) (*uint256.Int, error) {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return nil, ErrInvalidAsset
	}
	return l.load(supplyKey(asset))
}

// Mint credits newly issued units to addr. It is reserved for genesis seeding
// and test fixtures.
func (l *Ledger) Mint(addr common.Address, asset string, amount *uint256.Int) error {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return ErrInvalidAsset
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	supply, err := l.load(supplyKey(asset))
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return flasherrors.ErrAmountOverflow
	}
	if err := l.credit(addr, asset, amount); err != nil {
		return err
	}
	return l.store(supplyKey(asset), newSupply)
}

// Withdraw debits amount from addr and returns it as a coin.
func (l *Ledger) Withdraw(addr common.Address, asset string, amount *uint256.Int) (Coin, error) {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return Coin{}, ErrInvalidAsset
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	key := balanceKey(addr, asset)
	balance, err := l.load(key)
	if err != nil {
		return Coin{}, err
	}
	if balance.Lt(amount) {
		return Coin{}, fmt.Errorf("%w: %s holds %s %s, need %s", ErrInsufficientBalance, addr.Hex(), balance.Dec(), asset, amount.Dec())
	}
	if err := l.store(key, new(uint256.Int).Sub(balance, amount)); err != nil {
		return Coin{}, err
	}
	return newCoin(l.st, asset, amount), nil
}

// Deposit credits the coin's value to addr and spends the coin.
func (l *Ledger) Deposit(addr common.Address, coin Coin) error {
	if !coin.Valid() {
		return ErrCoinSpent
	}
	if coin.IsZero() {
		coin.spend()
		return nil
	}
	if err := l.credit(addr, coin.Asset(), coin.Value()); err != nil {
		return err
	}
	coin.spend()
	return nil
}

func (l *Ledger) credit(addr common.Address, asset string, amount *uint256.Int) error {
	key := balanceKey(addr, asset)
	balance, err := l.load(key)
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return flasherrors.ErrAmountOverflow
	}
	return l.store(key, updated)
}

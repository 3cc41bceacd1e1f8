// Package navi adapts a multi-asset lending pool to the flash-loan adapter
// contract. Each supported asset is served by its own pool.
package navi

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
	"flashsettle/core/state"
	"flashsettle/native/bank"
	"flashsettle/native/flashloan/adapter"
)

const (
	// Location is the adapter location this package installs under.
	Location = "navi"
	// FeeBps is the pool's flash-loan premium.
	FeeBps uint64 = 6
)

// Loan is the ticket issued for every navi borrow.
type Loan struct {
	PoolID uint64
	Asset  string
	Amount *uint256.Int
	Fees   *uint256.Int
	ID     uint64
}

func (l *Loan) Handle() state.ResourceID { return state.ResourceID(l.ID) }
func (l *Loan) Principal() *uint256.Int  { return l.Amount }
func (l *Loan) Fee() *uint256.Int        { return l.Fees }

func (l *Loan) digest() ([32]byte, error) {
	return adapter.Digest(Location, l.PoolID, l.Asset, l.Amount, l.Fees)
}

// Adapter lends from per-asset pools.
type Adapter struct {
	ledger  adapter.Ledger
	tracker adapter.Tracker
	pools   map[string]uint64
}

// New creates a navi adapter serving the provided assets. Pool ids are assigned
// in sorted asset order so they are stable across restarts.
func New(ledger adapter.Ledger, tracker adapter.Tracker, assets []string) *Adapter {
	sorted := make([]string, 0, len(assets))
	for _, asset := range assets {
		if asset = bank.NormalizeAsset(asset); asset != "" {
			sorted = append(sorted, asset)
		}
	}
	sort.Strings(sorted)
	pools := make(map[string]uint64, len(sorted))
	for _, asset := range sorted {
		if _, ok := pools[asset]; !ok {
			pools[asset] = uint64(len(pools))
		}
	}
	return &Adapter{ledger: ledger, tracker: tracker, pools: pools}
}

func (a *Adapter) Location() string { return Location }

func (a *Adapter) FeeBps() (uint64, error) { return FeeBps, nil }

// PoolID returns the pool serving asset.
func (a *Adapter) PoolID(asset string) (uint64, bool) {
	id, ok := a.pools[bank.NormalizeAsset(asset)]
	return id, ok
}

func (a *Adapter) Reserve(asset string) (common.Address, error) {
	id, ok := a.PoolID(asset)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: navi has no pool for %s", flasherrors.ErrInsufficientLiquidity, asset)
	}
	return adapter.PoolAddress(Location, strconv.FormatUint(id, 10)), nil
}

func (a *Adapter) Liquidity(asset string) (*uint256.Int, error) {
	reserve, err := a.Reserve(asset)
	if err != nil {
		return new(uint256.Int), nil
	}
	return a.ledger.Balance(reserve, asset)
}

func (a *Adapter) Borrow(asset string, amount *uint256.Int) (bank.Coin, adapter.Ticket, error) {
	asset = bank.NormalizeAsset(asset)
	poolID, ok := a.pools[asset]
	if !ok {
		return bank.Coin{}, nil, fmt.Errorf("%w: navi has no pool for %s", flasherrors.ErrInsufficientLiquidity, asset)
	}
	fee, err := adapter.CalculateFee(amount, FeeBps)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	reserve := adapter.PoolAddress(Location, strconv.FormatUint(poolID, 10))
	funds, err := adapter.Lend(a.ledger, reserve, asset, amount)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	loan := &Loan{PoolID: poolID, Asset: asset, Amount: new(uint256.Int).Set(amount), Fees: fee}
	digest, err := loan.digest()
	if err != nil {
		return bank.Coin{}, nil, err
	}
	loan.ID = uint64(a.tracker.OpenResource(digest))
	return funds, loan, nil
}

func (a *Adapter) Settle(ticket adapter.Ticket, repayment bank.Coin) (bank.Coin, error) {
	loan, ok := ticket.(*Loan)
	if !ok || loan == nil {
		return bank.Coin{}, fmt.Errorf("%w: navi cannot settle %T", flasherrors.ErrReceiptInvalid, ticket)
	}
	if repayment.Asset() != loan.Asset {
		return bank.Coin{}, fmt.Errorf("%w: loan in %s repaid with %s", flasherrors.ErrAssetTypeMismatch, loan.Asset, repayment.Asset())
	}
	due, err := adapter.Sum(loan.Amount, loan.Fees)
	if err != nil {
		return bank.Coin{}, err
	}
	digest, err := loan.digest()
	if err != nil {
		return bank.Coin{}, err
	}
	reserve := adapter.PoolAddress(Location, strconv.FormatUint(loan.PoolID, 10))
	return adapter.Collect(a.ledger, a.tracker, reserve, loan.Handle(), digest, due, repayment)
}

func (a *Adapter) DecodeTicket(payload []byte) (adapter.Ticket, error) {
	loan := new(Loan)
	if err := rlp.DecodeBytes(payload, loan); err != nil {
		return nil, fmt.Errorf("%w: navi ticket: %v", flasherrors.ErrReceiptInvalid, err)
	}
	return loan, nil
}

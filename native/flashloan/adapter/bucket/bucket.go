// Package bucket adapts a single-asset flash vault to the flash-loan adapter
// contract. The vault's fee rate is kept in state so it can be tuned without
// reinstalling the adapter.
package bucket

import (
	"fmt"

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
	Location = "bucket"
	// DefaultFeeBps applies until a vault record overrides it.
	DefaultFeeBps uint64 = 5
)

var vaultKey = []byte("flash/adapter/bucket/vault")

type vaultState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type vaultRecord struct {
	FeeBps uint64
}

// FlashReceipt is the bucket ticket. The vault is single-asset, so the ticket
// only records what is owed.
type FlashReceipt struct {
	Amount *uint256.Int
	Fees   *uint256.Int
	ID     uint64
}

func (r *FlashReceipt) Handle() state.ResourceID { return state.ResourceID(r.ID) }
func (r *FlashReceipt) Principal() *uint256.Int  { return r.Amount }
func (r *FlashReceipt) Fee() *uint256.Int        { return r.Fees }

func (r *FlashReceipt) digest(asset string) ([32]byte, error) {
	return adapter.Digest(Location, asset, r.Amount, r.Fees)
}

// Adapter lends a single asset from the vault reserve.
type Adapter struct {
	ledger  adapter.Ledger
	tracker adapter.Tracker
	st      vaultState
	asset   string
	reserve common.Address
}

// New creates a bucket adapter lending asset.
func New(ledger adapter.Ledger, tracker adapter.Tracker, st vaultState, asset string) *Adapter {
	asset = bank.NormalizeAsset(asset)
	return &Adapter{
		ledger:  ledger,
		tracker: tracker,
		st:      st,
		asset:   asset,
		reserve: adapter.PoolAddress(Location, asset),
	}
}

func (a *Adapter) Location() string { return Location }

// Asset returns the asset the vault lends.
func (a *Adapter) Asset() string { return a.asset }

// FeeBps reads the vault's current rate.
func (a *Adapter) FeeBps() (uint64, error) {
	var rec vaultRecord
	ok, err := a.st.KVGet(vaultKey, &rec)
	if err != nil {
		return 0, fmt.Errorf("bucket: load vault: %w", err)
	}
	if !ok {
		return DefaultFeeBps, nil
	}
	return rec.FeeBps, nil
}

// SetFeeBps updates the vault rate.
func (a *Adapter) SetFeeBps(bps uint64) error {
	if err := adapter.ValidateRate(bps); err != nil {
		return err
	}
	return a.st.KVPut(vaultKey, vaultRecord{FeeBps: bps})
}

func (a *Adapter) checkAsset(asset string) error {
	if bank.NormalizeAsset(asset) != a.asset {
		return fmt.Errorf("%w: bucket vault holds %s, not %s", flasherrors.ErrAssetTypeMismatch, a.asset, asset)
	}
	return nil
}

func (a *Adapter) Reserve(asset string) (common.Address, error) {
	if err := a.checkAsset(asset); err != nil {
		return common.Address{}, err
	}
	return a.reserve, nil
}

func (a *Adapter) Liquidity(asset string) (*uint256.Int, error) {
	if a.checkAsset(asset) != nil {
		return new(uint256.Int), nil
	}
	return a.ledger.Balance(a.reserve, a.asset)
}

func (a *Adapter) Borrow(asset string, amount *uint256.Int) (bank.Coin, adapter.Ticket, error) {
	if err := a.checkAsset(asset); err != nil {
		return bank.Coin{}, nil, err
	}
	bps, err := a.FeeBps()
	if err != nil {
		return bank.Coin{}, nil, err
	}
	fee, err := adapter.CalculateFee(amount, bps)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	funds, err := adapter.Lend(a.ledger, a.reserve, a.asset, amount)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	receipt := &FlashReceipt{Amount: new(uint256.Int).Set(amount), Fees: fee}
	digest, err := receipt.digest(a.asset)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	receipt.ID = uint64(a.tracker.OpenResource(digest))
	return funds, receipt, nil
}

func (a *Adapter) Settle(ticket adapter.Ticket, repayment bank.Coin) (bank.Coin, error) {
	receipt, ok := ticket.(*FlashReceipt)
	if !ok || receipt == nil {
		return bank.Coin{}, fmt.Errorf("%w: bucket cannot settle %T", flasherrors.ErrReceiptInvalid, ticket)
	}
	if err := a.checkAsset(repayment.Asset()); err != nil {
		return bank.Coin{}, err
	}
	due, err := adapter.Sum(receipt.Amount, receipt.Fees)
	if err != nil {
		return bank.Coin{}, err
	}
	digest, err := receipt.digest(a.asset)
	if err != nil {
		return bank.Coin{}, err
	}
	return adapter.Collect(a.ledger, a.tracker, a.reserve, receipt.Handle(), digest, due, repayment)
}

func (a *Adapter) DecodeTicket(payload []byte) (adapter.Ticket, error) {
	receipt := new(FlashReceipt)
	if err := rlp.DecodeBytes(payload, receipt); err != nil {
		return nil, fmt.Errorf("%w: bucket ticket: %v", flasherrors.ErrReceiptInvalid, err)
	}
	return receipt, nil
}

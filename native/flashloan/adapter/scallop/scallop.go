// Package scallop adapts a market-based money market to the flash-loan
// adapter contract. Repayments are merged into the market's reserve coin
// before being credited back, so only the market asset is accepted.
package scallop

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
	Location = "scallop"
	// FeeBps is the market flash-loan fee.
	FeeBps uint64 = 9
)

// Loan is the scallop ticket.
type Loan struct {
	Market string
	Asset  string
	Amount *uint256.Int
	Fees   *uint256.Int
	ID     uint64
}

func (l *Loan) Handle() state.ResourceID { return state.ResourceID(l.ID) }
func (l *Loan) Principal() *uint256.Int  { return l.Amount }
func (l *Loan) Fee() *uint256.Int        { return l.Fees }

func (l *Loan) digest() ([32]byte, error) {
	return adapter.Digest(Location, l.Market, l.Asset, l.Amount, l.Fees)
}

// Adapter lends from per-market reserves.
type Adapter struct {
	ledger  adapter.Ledger
	tracker adapter.Tracker
	markets map[string]string
}

// New creates a scallop adapter. markets maps each lendable asset to the
// market that holds it.
func New(ledger adapter.Ledger, tracker adapter.Tracker, markets map[string]string) *Adapter {
	normalized := make(map[string]string, len(markets))
	for asset, market := range markets {
		if asset = bank.NormalizeAsset(asset); asset != "" && market != "" {
			normalized[asset] = market
		}
	}
	return &Adapter{ledger: ledger, tracker: tracker, markets: normalized}
}

func (a *Adapter) Location() string { return Location }

func (a *Adapter) FeeBps() (uint64, error) { return FeeBps, nil }

// Market returns the market lending asset.
func (a *Adapter) Market(asset string) (string, bool) {
	market, ok := a.markets[bank.NormalizeAsset(asset)]
	return market, ok
}

func (a *Adapter) Reserve(asset string) (common.Address, error) {
	market, ok := a.Market(asset)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: scallop has no market for %s", flasherrors.ErrInsufficientLiquidity, asset)
	}
	return adapter.PoolAddress(Location, market), nil
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
	reserve, err := a.Reserve(asset)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	fee, err := adapter.CalculateFee(amount, FeeBps)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	funds, err := adapter.Lend(a.ledger, reserve, asset, amount)
	if err != nil {
		return bank.Coin{}, nil, err
	}
	loan := &Loan{Market: a.markets[asset], Asset: asset, Amount: new(uint256.Int).Set(amount), Fees: fee}
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
		return bank.Coin{}, fmt.Errorf("%w: scallop cannot settle %T", flasherrors.ErrReceiptInvalid, ticket)
	}
	due, err := adapter.Sum(loan.Amount, loan.Fees)
	if err != nil {
		return bank.Coin{}, err
	}
	if err := adapter.CheckRepayment(repayment, due); err != nil {
		return bank.Coin{}, err
	}
	digest, err := loan.digest()
	if err != nil {
		return bank.Coin{}, err
	}
	if err := a.tracker.ConsumeResource(loan.Handle(), digest); err != nil {
		return bank.Coin{}, err
	}
	owed, err := repayment.Split(due)
	if err != nil {
		return bank.Coin{}, err
	}
	reserveCoin := bank.Zero(loan.Asset)
	if err := reserveCoin.Join(owed); err != nil {
		return bank.Coin{}, err
	}
	if err := a.ledger.Deposit(adapter.PoolAddress(Location, loan.Market), reserveCoin); err != nil {
		return bank.Coin{}, err
	}
	return repayment, nil
}

func (a *Adapter) DecodeTicket(payload []byte) (adapter.Ticket, error) {
	loan := new(Loan)
	if err := rlp.DecodeBytes(payload, loan); err != nil {
		return nil, fmt.Errorf("%w: scallop ticket: %v", flasherrors.ErrReceiptInvalid, err)
	}
	return loan, nil
}

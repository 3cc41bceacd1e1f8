package scallop

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
	"flashsettle/core/state"
	"flashsettle/native/bank"
	"flashsettle/storage"
)

const (
	sui  = "0x2::sui::SUI"
	usdc = "0x5::usdc::USDC"
)

func newTestAdapter(t *testing.T) (*Adapter, *bank.Ledger, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(mgr)
	a := New(ledger, mgr, map[string]string{sui: "sui-main", usdc: "usdc-main"})
	for _, asset := range []string{sui, usdc} {
		reserve, err := a.Reserve(asset)
		if err != nil {
			t.Fatal(err)
		}
		if err := ledger.Mint(reserve, asset, uint256.NewInt(1_000_000_000)); err != nil {
			t.Fatal(err)
		}
	}
	return a, ledger, mgr
}

func coin(t *testing.T, ledger *bank.Ledger, asset string, amount uint64) bank.Coin {
	t.Helper()
	holder := common.HexToAddress("0x5CA1")
	if err := ledger.Mint(holder, asset, uint256.NewInt(amount)); err != nil {
		t.Fatal(err)
	}
	c, err := ledger.Withdraw(holder, asset, uint256.NewInt(amount))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBorrowRecordsMarket(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	_, ticket, err := a.Borrow(usdc, uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	loan := ticket.(*Loan)
	if loan.Market != "usdc-main" || loan.Asset != usdc || loan.Fees.Uint64() != 900 {
		t.Fatalf("unexpected loan %+v", loan)
	}
}

func TestSettleIntoReserve(t *testing.T) {
	a, ledger, mgr := newTestAdapter(t)
	funds, ticket, err := a.Borrow(sui, uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatal(err)
	}
	if err := funds.Join(coin(t, ledger, sui, 900)); err != nil {
		t.Fatal(err)
	}
	remainder, err := a.Settle(ticket, funds)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !remainder.IsZero() || mgr.LiveResources() != 0 {
		t.Fatalf("remainder=%s live=%d", remainder, mgr.LiveResources())
	}
	if liquidity, _ := a.Liquidity(sui); liquidity.Uint64() != 1_000_000_900 {
		t.Fatalf("liquidity = %s", liquidity.Dec())
	}
}

func TestSettleWithOtherAssetFailsInReserveJoin(t *testing.T) {
	a, ledger, _ := newTestAdapter(t)
	_, ticket, err := a.Borrow(sui, uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Settle(ticket, coin(t, ledger, usdc, 2_000_000)); !errors.Is(err, flasherrors.ErrAssetTypeMismatch) {
		t.Fatalf("expected ErrAssetTypeMismatch, got %v", err)
	}
}

func TestSettleOneUnitShort(t *testing.T) {
	a, ledger, _ := newTestAdapter(t)
	funds, ticket, err := a.Borrow(sui, uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatal(err)
	}
	if err := funds.Join(coin(t, ledger, sui, 899)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Settle(ticket, funds); !errors.Is(err, flasherrors.ErrInsufficientRepayment) {
		t.Fatalf("expected ErrInsufficientRepayment, got %v", err)
	}
}

func TestUnknownMarket(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	if _, _, err := a.Borrow("0x9::x::X", uint256.NewInt(1)); !errors.Is(err, flasherrors.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

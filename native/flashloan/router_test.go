package flashloan

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
	"flashsettle/core/events"
	"flashsettle/native/bank"
)

func TestQuoteFeeBreakdown(t *testing.T) {
	f := newFixture(t, 40)
	quote, err := f.router.Quote(context.Background(), ProtocolNavi, uint256.NewInt(1_000_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.ProtocolFee.Uint64() != 600_000 {
		t.Fatalf("protocol fee = %s, want 600000", quote.ProtocolFee.Dec())
	}
	if quote.ServiceFee.Uint64() != 4_000_000 {
		t.Fatalf("service fee = %s, want 4000000", quote.ServiceFee.Dec())
	}
	if quote.TotalRepayment.Uint64() != 1_004_600_000 {
		t.Fatalf("total = %s, want 1004600000", quote.TotalRepayment.Dec())
	}
}

func TestExecuteSettlesAndDistributes(t *testing.T) {
	f := newFixture(t, 40)
	naviPool := f.reserve(mustAdapter(t, f, ProtocolNavi), sui)

	settlement, err := f.router.Execute(context.Background(), Request{
		Protocol:    ProtocolNavi,
		Asset:       sui,
		Amount:      uint256.NewInt(1_000_000_000),
		Beneficiary: beneficiary,
		Callback:    f.topUp(5_000_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if settlement.TotalRepayment.Uint64() != 1_004_600_000 || settlement.Remainder.Uint64() != 400_000 {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
	if got := f.balance(treasury, sui); got != 4_000_000 {
		t.Fatalf("treasury = %d, want 4000000", got)
	}
	if got := f.balance(beneficiary, sui); got != 400_000 {
		t.Fatalf("beneficiary = %d, want 400000", got)
	}
	if got := f.balance(naviPool, sui); got != poolLiquidity+600_000 {
		t.Fatalf("pool = %d, want %d", got, poolLiquidity+600_000)
	}
	if got := f.balance(trader, sui); got != traderFunds-5_000_000 {
		t.Fatalf("trader = %d", got)
	}

	if len(f.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.events))
	}
	settled, ok := f.events[0].(events.FlashLoanSettled)
	if !ok {
		t.Fatalf("unexpected event %T", f.events[0])
	}
	rendered := settled.Event()
	want := map[string]string{
		"backend_id":      "0",
		"amount":          "1000000000",
		"protocol_fee":    "600000",
		"service_fee":     "4000000",
		"total_repayment": "1004600000",
	}
	for key, value := range want {
		if rendered.Attributes[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, rendered.Attributes[key], value)
		}
	}
}

func TestExecuteExactTotalLeavesNoRemainder(t *testing.T) {
	f := newFixture(t, 40)
	settlement, err := f.router.Execute(context.Background(), Request{
		Protocol:    ProtocolNavi,
		Asset:       sui,
		Amount:      uint256.NewInt(1_000_000_000),
		Beneficiary: beneficiary,
		Callback:    f.topUp(4_600_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !settlement.Remainder.IsZero() || f.balance(beneficiary, sui) != 0 {
		t.Fatalf("expected no remainder, got %s", settlement.Remainder.Dec())
	}
}

func TestExecuteFailuresMoveNothing(t *testing.T) {
	cases := []struct {
		name  string
		extra uint64
		want  error
	}{
		{name: "one unit short of total", extra: 4_599_999, want: flasherrors.ErrInsufficientRepayment},
		{name: "one unit short of protocol due", extra: 599_999, want: flasherrors.ErrInsufficientRepayment},
		{name: "nothing returned beyond principal", extra: 0, want: flasherrors.ErrInsufficientRepayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 40)
			naviPool := f.reserve(mustAdapter(t, f, ProtocolNavi), sui)
			before := f.snapshotBalances(sui, treasury, beneficiary, trader, naviPool)

			_, err := f.router.Execute(context.Background(), Request{
				Protocol:    ProtocolNavi,
				Asset:       sui,
				Amount:      uint256.NewInt(1_000_000_000),
				Beneficiary: beneficiary,
				Callback:    f.topUp(tc.extra),
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			after := f.snapshotBalances(sui, treasury, beneficiary, trader, naviPool)
			for i := range before {
				if before[i] != after[i] {
					t.Fatalf("balance %d moved: %d -> %d", i, before[i], after[i])
				}
			}
			if f.st.LiveResources() != 0 || len(f.events) != 0 {
				t.Fatalf("aborted loan left live=%d events=%d", f.st.LiveResources(), len(f.events))
			}
		})
	}
}

func refuse(t *testing.T) Recipient {
	return RecipientFunc(func(context.Context, bank.Coin, []byte) (bank.Coin, error) {
		t.Fatalf("callback must not run")
		return bank.Coin{}, nil
	})
}

func TestExecuteGuards(t *testing.T) {
	f := newFixture(t, 40)
	ctx := context.Background()

	if _, err := f.router.Execute(ctx, Request{Protocol: ProtocolNavi, Asset: sui, Amount: new(uint256.Int), Callback: refuse(t)}); !errors.Is(err, flasherrors.ErrAmountTooLow) {
		t.Fatalf("expected ErrAmountTooLow, got %v", err)
	}
	if _, err := f.router.Execute(ctx, Request{Protocol: ProtocolNavi, Asset: usdc, Amount: uint256.NewInt(10), Callback: refuse(t)}); !errors.Is(err, flasherrors.ErrUnallowedAsset) {
		t.Fatalf("expected ErrUnallowedAsset, got %v", err)
	}
	if _, err := f.router.Execute(ctx, Request{Protocol: 999, Asset: sui, Amount: uint256.NewInt(10), Callback: refuse(t)}); !errors.Is(err, flasherrors.ErrInvalidProtocol) {
		t.Fatalf("expected ErrInvalidProtocol, got %v", err)
	}

	if err := f.admin.SetPaused(ctx, f.cap, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.router.Execute(ctx, Request{Protocol: ProtocolNavi, Asset: sui, Amount: uint256.NewInt(10), Callback: refuse(t)}); !errors.Is(err, flasherrors.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if err := f.admin.SetPaused(ctx, f.cap, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := f.router.Execute(ctx, Request{Protocol: ProtocolNavi, Asset: sui, Amount: uint256.NewInt(10_000), Beneficiary: beneficiary, Callback: f.topUp(100)}); err != nil {
		t.Fatalf("execute after unpause: %v", err)
	}
}

func TestExecuteCallbackPanicRollsBack(t *testing.T) {
	f := newFixture(t, 40)
	naviPool := f.reserve(mustAdapter(t, f, ProtocolNavi), sui)
	_, err := f.router.Execute(context.Background(), Request{
		Protocol: ProtocolNavi,
		Asset:    sui,
		Amount:   uint256.NewInt(1_000),
		Callback: RecipientFunc(func(ctx context.Context, funds bank.Coin, _ []byte) (bank.Coin, error) {
			panic("strategy blew up")
		}),
	})
	if err == nil {
		t.Fatalf("expected panic to abort the loan")
	}
	if got := f.balance(naviPool, sui); got != poolLiquidity {
		t.Fatalf("pool = %d after rollback", got)
	}
	if f.st.LiveResources() != 0 {
		t.Fatalf("expected ticket to be rolled back")
	}
}

func TestExecuteRepaidInWrongAsset(t *testing.T) {
	f := newFixture(t, 40)
	_, err := f.router.Execute(context.Background(), Request{
		Protocol: ProtocolNavi,
		Asset:    sui,
		Amount:   uint256.NewInt(1_000),
		Callback: RecipientFunc(func(ctx context.Context, funds bank.Coin, _ []byte) (bank.Coin, error) {
			return f.ledger.Withdraw(trader, usdc, uint256.NewInt(10_000))
		}),
	})
	if !errors.Is(err, flasherrors.ErrAssetTypeMismatch) {
		t.Fatalf("expected ErrAssetTypeMismatch, got %v", err)
	}
	if got := f.balance(trader, usdc); got != traderFunds {
		t.Fatalf("trader usdc = %d after rollback", got)
	}
}

func TestExecuteBucketUsesVaultFee(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	if err := f.admin.AddAllowedAsset(ctx, f.cap, buck); err != nil {
		t.Fatal(err)
	}
	if err := f.st.Atomic(ctx, func(context.Context) error { return f.bucket.SetFeeBps(20) }); err != nil {
		t.Fatal(err)
	}
	quote, err := f.router.Quote(ctx, ProtocolBucket, uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatal(err)
	}
	if quote.ProtocolFeeBps != 20 || quote.ProtocolFee.Uint64() != 2_000 || !quote.ServiceFee.IsZero() {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if _, err := f.router.Execute(ctx, Request{Protocol: ProtocolBucket, Asset: buck, Amount: uint256.NewInt(1_000_000), Beneficiary: beneficiary, Callback: f.topUp(2_000)}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := f.router.Execute(ctx, Request{Protocol: ProtocolBucket, Asset: sui, Amount: uint256.NewInt(1_000), Callback: refuse(t)}); !errors.Is(err, flasherrors.ErrAssetTypeMismatch) {
		t.Fatalf("expected bucket to reject sui, got %v", err)
	}
}

func TestNestedLoanInsideCallback(t *testing.T) {
	f := newFixture(t, 40)
	inner := Request{
		Protocol:    ProtocolScallop,
		Asset:       sui,
		Amount:      uint256.NewInt(2_000_000),
		Beneficiary: beneficiary,
		Callback:    f.topUp(9_800),
	}
	outer := Request{
		Protocol:    ProtocolNavi,
		Asset:       sui,
		Amount:      uint256.NewInt(1_000_000),
		Beneficiary: beneficiary,
		Callback: RecipientFunc(func(ctx context.Context, funds bank.Coin, payload []byte) (bank.Coin, error) {
			if _, err := f.router.Execute(ctx, inner); err != nil {
				return bank.Coin{}, err
			}
			return f.topUp(4_600).Execute(ctx, funds, payload)
		}),
	}
	if _, err := f.router.Execute(context.Background(), outer); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := f.balance(treasury, sui); got != 8_000+4_000 {
		t.Fatalf("treasury = %d, want 12000", got)
	}
	if len(f.events) != 2 {
		t.Fatalf("expected two settlement events, got %d", len(f.events))
	}
}

func TestExecuteConservesSupply(t *testing.T) {
	f := newFixture(t, 40)
	supplyBefore, _ := f.ledger.Supply(sui)
	if _, err := f.router.Execute(context.Background(), Request{Protocol: ProtocolScallop, Asset: sui, Amount: uint256.NewInt(777_777), Beneficiary: beneficiary, Callback: f.topUp(10_000)}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	supplyAfter, _ := f.ledger.Supply(sui)
	if !supplyBefore.Eq(supplyAfter) {
		t.Fatalf("supply changed: %s -> %s", supplyBefore.Dec(), supplyAfter.Dec())
	}
	scallopPool := f.reserve(mustAdapter(t, f, ProtocolScallop), sui)
	naviPool := f.reserve(mustAdapter(t, f, ProtocolNavi), sui)
	var total uint64
	for _, addr := range []common.Address{treasury, beneficiary, trader, scallopPool, naviPool} {
		total += f.balance(addr, sui)
	}
	if total != supplyAfter.Uint64() {
		t.Fatalf("balances sum to %d, supply %s", total, supplyAfter.Dec())
	}
}

func TestAbortedExecuteRevokesRetainedFunds(t *testing.T) {
	f := newFixture(t, 40)
	naviPool := f.reserve(mustAdapter(t, f, ProtocolNavi), sui)
	before := f.snapshotBalances(sui, naviPool, trader, treasury, beneficiary)
	strategyFailed := errors.New("strategy failed")

	var kept bank.Coin
	_, err := f.router.Execute(context.Background(), Request{
		Protocol:    ProtocolNavi,
		Asset:       sui,
		Amount:      uint256.NewInt(1_000_000_000),
		Beneficiary: beneficiary,
		Callback: RecipientFunc(func(ctx context.Context, funds bank.Coin, _ []byte) (bank.Coin, error) {
			kept = funds
			return bank.Coin{}, strategyFailed
		}),
	})
	if !errors.Is(err, strategyFailed) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if kept.Valid() || !kept.Value().IsZero() {
		t.Fatalf("borrowed coin survived the aborted unit: %s", kept)
	}

	err = f.st.Atomic(context.Background(), func(context.Context) error {
		return f.ledger.Deposit(trader, kept)
	})
	if !errors.Is(err, bank.ErrCoinSpent) {
		t.Fatalf("expected ErrCoinSpent depositing a revoked coin, got %v", err)
	}
	after := f.snapshotBalances(sui, naviPool, trader, treasury, beneficiary)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("balance %d changed: %d -> %d", i, before[i], after[i])
		}
	}
	supply, _ := f.ledger.Supply(sui)
	scallopPool := f.reserve(mustAdapter(t, f, ProtocolScallop), sui)
	var total uint64
	for _, addr := range []common.Address{treasury, beneficiary, trader, scallopPool, naviPool} {
		total += f.balance(addr, sui)
	}
	if total != supply.Uint64() {
		t.Fatalf("balances sum to %d, supply %s", total, supply.Dec())
	}
}

func TestFailedNestedLoanRestoresJoinedCoins(t *testing.T) {
	f := newFixture(t, 40)
	before := f.balance(trader, sui)

	err := f.st.Atomic(context.Background(), func(ctx context.Context) error {
		stake, err := f.ledger.Withdraw(trader, sui, uint256.NewInt(5_000))
		if err != nil {
			return err
		}
		_, err = f.router.Execute(ctx, Request{
			Protocol:    ProtocolNavi,
			Asset:       sui,
			Amount:      uint256.NewInt(1_000_000),
			Beneficiary: beneficiary,
			Callback: RecipientFunc(func(ctx context.Context, funds bank.Coin, _ []byte) (bank.Coin, error) {
				if err := stake.Join(funds); err != nil {
					return bank.Coin{}, err
				}
				return bank.Coin{}, errors.New("gave up")
			}),
		})
		if err == nil {
			t.Fatalf("expected nested loan to fail")
		}
		if !stake.Valid() || stake.Value().Uint64() != 5_000 {
			t.Fatalf("stake after failed nested loan = %s, want 5000", stake)
		}
		return f.ledger.Deposit(trader, stake)
	})
	if err != nil {
		t.Fatalf("outer unit: %v", err)
	}
	if got := f.balance(trader, sui); got != before {
		t.Fatalf("trader balance = %d, want %d", got, before)
	}
}

func TestNestedSettlementReportedOnlyAfterOuterCommit(t *testing.T) {
	f := newFixture(t, 40)
	var logs bytes.Buffer
	router := NewRouter(f.st, f.ledger, f.dispatcher, slog.New(slog.NewJSONHandler(&logs, nil)))
	outerFailed := errors.New("outer failed")

	err := f.st.Atomic(context.Background(), func(ctx context.Context) error {
		if _, err := router.Execute(ctx, Request{Protocol: ProtocolNavi, Asset: sui, Amount: uint256.NewInt(1_000_000), Beneficiary: beneficiary, Callback: f.topUp(10_000)}); err != nil {
			t.Fatalf("nested execute: %v", err)
		}
		return outerFailed
	})
	if !errors.Is(err, outerFailed) {
		t.Fatalf("expected outer failure, got %v", err)
	}
	if strings.Contains(logs.String(), "flash loan settled") {
		t.Fatalf("reverted loan was reported as settled: %s", logs.String())
	}
	if len(f.events) != 0 {
		t.Fatalf("expected no events, got %d", len(f.events))
	}

	err = f.st.Atomic(context.Background(), func(ctx context.Context) error {
		_, err := router.Execute(ctx, Request{Protocol: ProtocolNavi, Asset: sui, Amount: uint256.NewInt(1_000_000), Beneficiary: beneficiary, Callback: f.topUp(10_000)})
		return err
	})
	if err != nil {
		t.Fatalf("outer unit: %v", err)
	}
	if got := strings.Count(logs.String(), "flash loan settled"); got != 1 {
		t.Fatalf("settled log lines = %d, want 1", got)
	}
}

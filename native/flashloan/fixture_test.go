package flashloan

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flashsettle/core/events"
	"flashsettle/core/state"
	"flashsettle/native/bank"
	"flashsettle/native/flashloan/adapter"
	"flashsettle/native/flashloan/adapter/bucket"
	"flashsettle/native/flashloan/adapter/navi"
	"flashsettle/native/flashloan/adapter/scallop"
	"flashsettle/storage"
)

const (
	sui  = "0x2::sui::SUI"
	usdc = "0x5::usdc::USDC"
	buck = "0xce7f::buck::BUCK"

	poolLiquidity = 10_000_000_000
	traderFunds   = 1_000_000_000
)

var (
	treasury    = common.HexToAddress("0x7EA5")
	beneficiary = common.HexToAddress("0xBEEF")
	trader      = common.HexToAddress("0x7AD3")
)

type fixture struct {
	t          *testing.T
	st         *state.Manager
	ledger     *bank.Ledger
	dispatcher *Dispatcher
	admin      *Admin
	router     *Router
	cap        *AdminCap
	bucket     *bucket.Adapter
	events     []events.Event
}

func newFixture(t *testing.T, serviceFeeBps uint64) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(st)
	f := &fixture{t: t, st: st, ledger: ledger}
	st.SetEmitter(events.EmitterFunc(func(evt events.Event) { f.events = append(f.events, evt) }))

	f.dispatcher = NewDispatcher(st)
	naviAdapter := navi.New(ledger, st, []string{sui, usdc})
	f.bucket = bucket.New(ledger, st, st, buck)
	scallopAdapter := scallop.New(ledger, st, map[string]string{sui: "sui-main"})
	for _, a := range []adapter.Adapter{naviAdapter, f.bucket, scallopAdapter} {
		f.dispatcher.Install(a)
	}
	f.admin = NewAdmin(st, nil)
	f.router = NewRouter(st, ledger, f.dispatcher, nil)

	holder, err := f.admin.Initialise(context.Background(), treasury, serviceFeeBps)
	if err != nil {
		t.Fatalf("initialise: %v", err)
	}
	f.cap = holder
	if err := f.admin.AddAllowedAsset(context.Background(), holder, sui); err != nil {
		t.Fatalf("allow asset: %v", err)
	}

	err = st.Atomic(context.Background(), func(context.Context) error {
		seed := []struct {
			a     adapter.Adapter
			asset string
		}{
			{naviAdapter, sui},
			{naviAdapter, usdc},
			{f.bucket, buck},
			{scallopAdapter, sui},
		}
		for _, s := range seed {
			reserve, err := s.a.Reserve(s.asset)
			if err != nil {
				return err
			}
			if err := ledger.Mint(reserve, s.asset, uint256.NewInt(poolLiquidity)); err != nil {
				return err
			}
		}
		for _, asset := range []string{sui, usdc, buck} {
			if err := ledger.Mint(trader, asset, uint256.NewInt(traderFunds)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.events = nil
	return f
}

func (f *fixture) balance(addr common.Address, asset string) uint64 {
	f.t.Helper()
	var bal *uint256.Int
	err := f.st.View(context.Background(), func() error {
		var err error
		bal, err = f.ledger.Balance(addr, asset)
		return err
	})
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal.Uint64()
}

func (f *fixture) reserve(a adapter.Adapter, asset string) common.Address {
	f.t.Helper()
	addr, err := a.Reserve(asset)
	if err != nil {
		f.t.Fatalf("reserve: %v", err)
	}
	return addr
}

// topUp returns a callback that adds extra units from the trader's account to
// the borrowed funds and hands everything back.
func (f *fixture) topUp(extra uint64) Recipient {
	return RecipientFunc(func(ctx context.Context, funds bank.Coin, _ []byte) (bank.Coin, error) {
		top, err := f.ledger.Withdraw(trader, funds.Asset(), uint256.NewInt(extra))
		if err != nil {
			return bank.Coin{}, err
		}
		if err := funds.Join(top); err != nil {
			return bank.Coin{}, err
		}
		return funds, nil
	})
}

func (f *fixture) snapshotBalances(asset string, addrs ...common.Address) []uint64 {
	out := make([]uint64, len(addrs))
	for i, addr := range addrs {
		out[i] = f.balance(addr, asset)
	}
	return out
}

func mustAdapter(t *testing.T, f *fixture, id uint64) adapter.Adapter {
	t.Helper()
	var a adapter.Adapter
	err := f.st.View(context.Background(), func() error {
		var err error
		a, err = f.dispatcher.resolve(id)
		return err
	})
	if err != nil {
		t.Fatalf("resolve %d: %v", id, err)
	}
	return a
}

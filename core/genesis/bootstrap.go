package genesis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"flashsettle/core/state"
	"flashsettle/native/bank"
	"flashsettle/native/flashloan"
	"flashsettle/native/flashloan/adapter/bucket"
)

// ErrAlreadyInitialised is returned when bootstrapping a state that already
// holds a settlement configuration.
var ErrAlreadyInitialised = flashloan.ErrAlreadyInitialised

// Host exposes the components a bootstrap writes to.
type Host interface {
	State() *state.Manager
	Ledger() *bank.Ledger
	Admin() *flashloan.Admin
	Dispatcher() *flashloan.Dispatcher
	Bucket() *bucket.Adapter
}

// Bootstrap applies spec to a fresh state in one atomic unit and returns the
// admin cap governing the new configuration.
func Bootstrap(ctx context.Context, host Host, spec *GenesisSpec) (*flashloan.AdminCap, error) {
	if host == nil {
		return nil, fmt.Errorf("genesis: host must not be nil")
	}
	if spec == nil {
		return nil, fmt.Errorf("genesis: spec must not be nil")
	}
	if spec.alloc == nil {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
	}

	var holder *flashloan.AdminCap
	err := host.State().Atomic(ctx, func(ctx context.Context) error {
		admin := host.Admin()
		created, err := admin.Initialise(ctx, spec.treasury, spec.ServiceFee())
		if err != nil {
			return err
		}
		holder = created

		for _, asset := range spec.AllowedAssets {
			if err := admin.AddAllowedAsset(ctx, holder, asset); err != nil {
				return fmt.Errorf("allow %s: %w", asset, err)
			}
		}
		for _, location := range spec.Registry {
			if _, err := admin.AppendAdapter(ctx, holder, location); err != nil {
				return fmt.Errorf("register %s: %w", location, err)
			}
		}
		ids := make([]uint64, 0, len(spec.overrides))
		for id := range spec.overrides {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if err := admin.SetAdapterLocation(ctx, holder, id, spec.overrides[id]); err != nil {
				return fmt.Errorf("adapter %d: %w", id, err)
			}
		}
		if spec.VaultFeeBps != nil && host.Bucket() != nil {
			if err := host.Bucket().SetFeeBps(*spec.VaultFeeBps); err != nil {
				return err
			}
		}
		if err := seedBalances(host, spec); err != nil {
			return err
		}
		if spec.Paused {
			return admin.SetPaused(ctx, holder, true)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, flashloan.ErrAlreadyInitialised) {
			return nil, ErrAlreadyInitialised
		}
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return holder, nil
}

func seedBalances(host Host, spec *GenesisSpec) error {
	ledger := host.Ledger()
	for i, entry := range spec.Liquidity {
		reserve, err := host.Dispatcher().Reserve(entry.Protocol, entry.Asset)
		if err != nil {
			return fmt.Errorf("liquidity[%d]: %w", i, err)
		}
		if err := ledger.Mint(reserve, entry.Asset, entry.amount); err != nil {
			return fmt.Errorf("liquidity[%d]: %w", i, err)
		}
	}
	addrs := make([]common.Address, 0, len(spec.alloc))
	for addr := range spec.alloc {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
	for _, addr := range addrs {
		balances := spec.alloc[addr]
		assets := make([]string, 0, len(balances))
		for asset := range balances {
			assets = append(assets, asset)
		}
		sort.Strings(assets)
		for _, asset := range assets {
			if err := ledger.Mint(addr, asset, balances[asset]); err != nil {
				return fmt.Errorf("alloc %s %s: %w", addr.Hex(), asset, err)
			}
		}
	}
	return nil
}

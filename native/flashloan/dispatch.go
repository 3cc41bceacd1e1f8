package flashloan

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	flasherrors "flashsettle/core/errors"
	"flashsettle/native/bank"
	"flashsettle/native/flashloan/adapter"
	"flashsettle/native/flashloan/adapter/bucket"
	"flashsettle/native/flashloan/adapter/navi"
	"flashsettle/native/flashloan/adapter/scallop"
)

// Built-in protocol ids.
const (
	ProtocolNavi    uint64 = 0
	ProtocolBucket  uint64 = 1
	ProtocolScallop uint64 = 2
)

var defaultLocations = map[uint64]string{
	ProtocolNavi:    navi.Location,
	ProtocolBucket:  bucket.Location,
	ProtocolScallop: scallop.Location,
}

// ProtocolInfo describes one resolvable back-end.
type ProtocolInfo struct {
	ID        uint64
	Location  string
	FeeBps    uint64
	Liquidity *uint256.Int
}

// Dispatcher routes the uniform {fee, borrow, settle} operations to the
// adapter currently selected for a protocol id. Every id is resolved in one
// place, and unknown ids fail with ErrInvalidProtocol for all operations.
type Dispatcher struct {
	store *Store

	mu       sync.RWMutex
	adapters map[string]adapter.Adapter
}

func NewDispatcher(st kvState) *Dispatcher {
	return &Dispatcher{store: NewStore(st), adapters: make(map[string]adapter.Adapter)}
}

// Install makes an adapter implementation available under its location.
func (d *Dispatcher) Install(a adapter.Adapter) {
	if a == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[a.Location()] = a
}

// Installed lists the installed adapter locations.
func (d *Dispatcher) Installed() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.adapters))
	for location := range d.adapters {
		out = append(out, location)
	}
	sort.Strings(out)
	return out
}

// location picks the adapter location for id: configuration override first,
// then the registry, then the built-in defaults.
func (d *Dispatcher) location(id uint64) (string, error) {
	cfg, err := d.store.Config()
	switch {
	case err == nil:
		if location := cfg.AdapterLocation(id); location != "" {
			return location, nil
		}
	case !errors.Is(err, ErrNotInitialised):
		return "", err
	}
	reg, err := d.store.Registry()
	if err != nil {
		return "", err
	}
	if id < reg.Len() {
		location, err := reg.Lookup(id)
		if err != nil {
			return "", err
		}
		return location, nil
	}
	if location, ok := defaultLocations[id]; ok {
		return location, nil
	}
	return "", fmt.Errorf("%w: unknown protocol %d", flasherrors.ErrInvalidProtocol, id)
}

func (d *Dispatcher) resolve(id uint64) (adapter.Adapter, error) {
	location, err := d.location(id)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	a, ok := d.adapters[location]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: protocol %d resolves to uninstalled adapter %q", flasherrors.ErrInvalidProtocol, id, location)
	}
	return a, nil
}

// FeeRate returns the protocol fee of back-end id in basis points.
func (d *Dispatcher) FeeRate(id uint64) (uint64, error) {
	a, err := d.resolve(id)
	if err != nil {
		return 0, err
	}
	bps, err := a.FeeBps()
	if err != nil {
		return 0, err
	}
	if err := adapter.ValidateRate(bps); err != nil {
		return 0, err
	}
	return bps, nil
}

// Borrow takes amount of asset from back-end id. The returned receipt must be
// passed to Settle within the same unit.
func (d *Dispatcher) Borrow(id uint64, asset string, amount *uint256.Int) (bank.Coin, adapter.Receipt, error) {
	a, err := d.resolve(id)
	if err != nil {
		return bank.Coin{}, adapter.Receipt{}, err
	}
	funds, ticket, err := a.Borrow(asset, amount)
	if err != nil {
		return bank.Coin{}, adapter.Receipt{}, err
	}
	payload, err := rlp.EncodeToBytes(ticket)
	if err != nil {
		return bank.Coin{}, adapter.Receipt{}, fmt.Errorf("flashloan: encode ticket: %w", err)
	}
	return funds, adapter.Receipt{Protocol: id, Location: a.Location(), Payload: payload}, nil
}

// Settle repays the loan behind receipt and returns what is left of
// repayment.
func (d *Dispatcher) Settle(id uint64, receipt adapter.Receipt, repayment bank.Coin) (bank.Coin, error) {
	if receipt.Protocol != id {
		return bank.Coin{}, fmt.Errorf("%w: receipt issued by protocol %d settled against %d", flasherrors.ErrInvalidProtocol, receipt.Protocol, id)
	}
	a, err := d.resolve(id)
	if err != nil {
		return bank.Coin{}, err
	}
	if receipt.Empty() || receipt.Location != a.Location() {
		return bank.Coin{}, fmt.Errorf("%w: receipt from %q presented to %q", flasherrors.ErrReceiptInvalid, receipt.Location, a.Location())
	}
	ticket, err := a.DecodeTicket(receipt.Payload)
	if err != nil {
		return bank.Coin{}, err
	}
	return a.Settle(ticket, repayment)
}

// Protocols lists every resolvable back-end with its fee and, when asset is
// set, its available liquidity.
func (d *Dispatcher) Protocols(asset string) ([]ProtocolInfo, error) {
	count := uint64(len(defaultLocations))
	if reg, err := d.store.Registry(); err != nil {
		return nil, err
	} else if reg.Len() > count {
		count = reg.Len()
	}
	cfg, err := d.store.Config()
	if err != nil && !errors.Is(err, ErrNotInitialised) {
		return nil, err
	}
	if cfg != nil && uint64(len(cfg.Adapters)) > count {
		count = uint64(len(cfg.Adapters))
	}
	if count > MaxProtocolID+1 {
		count = MaxProtocolID + 1
	}
	out := make([]ProtocolInfo, 0, count)
	for id := uint64(0); id < count; id++ {
		a, err := d.resolve(id)
		if errors.Is(err, flasherrors.ErrInvalidProtocol) {
			continue
		}
		if err != nil {
			return nil, err
		}
		bps, err := a.FeeBps()
		if err != nil {
			return nil, err
		}
		info := ProtocolInfo{ID: id, Location: a.Location(), FeeBps: bps, Liquidity: new(uint256.Int)}
		if asset != "" {
			liquidity, err := a.Liquidity(asset)
			if err != nil {
				return nil, err
			}
			info.Liquidity = liquidity
		}
		out = append(out, info)
	}
	return out, nil
}

// Reserve returns the liquidity account of back-end id for asset.
func (d *Dispatcher) Reserve(id uint64, asset string) (common.Address, error) {
	a, err := d.resolve(id)
	if err != nil {
		return common.Address{}, err
	}
	return a.Reserve(asset)
}

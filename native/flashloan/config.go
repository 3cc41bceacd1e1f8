package flashloan

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	flasherrors "flashsettle/core/errors"
	"flashsettle/native/bank"
	"flashsettle/native/flashloan/adapter"
)

const moduleName = "flashloan"

// MaxProtocolID bounds the protocol ids that overrides and registry entries
// may address.
const MaxProtocolID uint64 = 1023

// DefaultServiceFeeBps is the service fee applied when none is configured.
const DefaultServiceFeeBps uint64 = 40

// Config is the shared settlement configuration. Mutations require the admin
// cap whose digest is recorded in AdminID.
type Config struct {
	Treasury      common.Address
	ServiceFeeBps uint64
	Paused        bool
	AllowedAssets []string
	// Adapters overrides adapter locations by protocol id. Empty entries are
	// unset.
	Adapters []string
	AdminID  [32]byte
}

// Create builds a fresh configuration and the cap that governs it.
func Create(treasury common.Address, serviceFeeBps uint64) (*AdminCap, *Config, error) {
	if err := adapter.ValidateRate(serviceFeeBps); err != nil {
		return nil, nil, err
	}
	holder, err := newAdminCap()
	if err != nil {
		return nil, nil, err
	}
	cfg := &Config{
		Treasury:      treasury,
		ServiceFeeBps: serviceFeeBps,
		AllowedAssets: []string{},
		Adapters:      []string{},
		AdminID:       holder.ID(),
	}
	return holder, cfg, nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AllowedAssets = append([]string{}, c.AllowedAssets...)
	clone.Adapters = append([]string{}, c.Adapters...)
	return &clone
}

func (c *Config) SetServiceFee(holder *AdminCap, bps uint64) error {
	if err := authorize(holder, c.AdminID); err != nil {
		return err
	}
	if err := adapter.ValidateRate(bps); err != nil {
		return err
	}
	c.ServiceFeeBps = bps
	return nil
}

func (c *Config) SetPaused(holder *AdminCap, paused bool) error {
	if err := authorize(holder, c.AdminID); err != nil {
		return err
	}
	c.Paused = paused
	return nil
}

func (c *Config) SetTreasury(holder *AdminCap, treasury common.Address) error {
	if err := authorize(holder, c.AdminID); err != nil {
		return err
	}
	c.Treasury = treasury
	return nil
}

// AddAllowedAsset adds tag to the allowlist. It reports whether the list
// changed; adding a member twice is a no-op.
func (c *Config) AddAllowedAsset(holder *AdminCap, tag string) (bool, error) {
	if err := authorize(holder, c.AdminID); err != nil {
		return false, err
	}
	tag = bank.NormalizeAsset(tag)
	if tag == "" {
		return false, bank.ErrInvalidAsset
	}
	if c.IsAllowed(tag) {
		return false, nil
	}
	c.AllowedAssets = append(c.AllowedAssets, tag)
	return true, nil
}

// SetAdapterLocation overrides the adapter used for protocol id, growing the
// table with unset entries as needed. An empty location clears the override.
func (c *Config) SetAdapterLocation(holder *AdminCap, id uint64, location string) error {
	if err := authorize(holder, c.AdminID); err != nil {
		return err
	}
	if id > MaxProtocolID {
		return fmt.Errorf("%w: protocol %d exceeds %d", flasherrors.ErrIndexOutOfBounds, id, MaxProtocolID)
	}
	location = strings.TrimSpace(location)
	for uint64(len(c.Adapters)) <= id {
		c.Adapters = append(c.Adapters, "")
	}
	c.Adapters[id] = location
	return nil
}

// AssertNotPaused fails with ErrPaused while settlement is halted.
func (c *Config) AssertNotPaused() error {
	if c != nil && c.Paused {
		return fmt.Errorf("%w: settlement halted", flasherrors.ErrPaused)
	}
	return nil
}

// IsPaused reports the pause switch for the flash-loan module.
func (c *Config) IsPaused(module string) bool {
	return c != nil && module == moduleName && c.Paused
}

// IsAllowed reports whether tag may be borrowed. An empty allowlist admits
// nothing.
func (c *Config) IsAllowed(tag string) bool {
	if c == nil {
		return false
	}
	tag = bank.NormalizeAsset(tag)
	for _, allowed := range c.AllowedAssets {
		if allowed == tag {
			return true
		}
	}
	return false
}

// AdapterLocation returns the override for id, or "" when unset.
func (c *Config) AdapterLocation(id uint64) string {
	if c == nil || id >= uint64(len(c.Adapters)) {
		return ""
	}
	return c.Adapters[id]
}

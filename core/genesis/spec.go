package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flashsettle/native/flashloan"
	"flashsettle/native/flashloan/adapter"
)

// GenesisSpec describes the initial settlement configuration and balances.
type GenesisSpec struct {
	Treasury      string                       `json:"treasury"`
	ServiceFeeBps *uint64                      `json:"serviceFeeBps,omitempty"`
	Paused        bool                         `json:"paused,omitempty"`
	AllowedAssets []string                     `json:"allowedAssets"`
	Adapters      map[string]string            `json:"adapters,omitempty"` // protocol id -> location override
	Registry      []string                     `json:"registry,omitempty"`
	VaultFeeBps   *uint64                      `json:"vaultFeeBps,omitempty"`
	Liquidity     []LiquiditySpec              `json:"liquidity,omitempty"`
	Alloc         map[string]map[string]string `json:"alloc,omitempty"` // addr -> asset -> amount

	treasury  common.Address
	overrides map[uint64]string
	alloc     map[common.Address]map[string]*uint256.Int
}

// LiquiditySpec seeds a back-end's reserve for one asset.
type LiquiditySpec struct {
	Protocol uint64 `json:"protocol"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`

	amount *uint256.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a JSON genesis document.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// ServiceFee returns the configured service fee or the module default.
func (s *GenesisSpec) ServiceFee() uint64 {
	if s.ServiceFeeBps == nil {
		return flashloan.DefaultServiceFeeBps
	}
	return *s.ServiceFeeBps
}

func (s *GenesisSpec) validate() error {
	if !common.IsHexAddress(s.Treasury) {
		return fmt.Errorf("treasury: invalid address %q", s.Treasury)
	}
	s.treasury = common.HexToAddress(s.Treasury)

	if err := adapter.ValidateRate(s.ServiceFee()); err != nil {
		return fmt.Errorf("serviceFeeBps: %w", err)
	}
	if s.VaultFeeBps != nil {
		if err := adapter.ValidateRate(*s.VaultFeeBps); err != nil {
			return fmt.Errorf("vaultFeeBps: %w", err)
		}
	}
	for i, asset := range s.AllowedAssets {
		if strings.TrimSpace(asset) == "" {
			return fmt.Errorf("allowedAssets[%d]: asset tag required", i)
		}
	}

	s.overrides = make(map[uint64]string, len(s.Adapters))
	for rawID, location := range s.Adapters {
		id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
		if err != nil {
			return fmt.Errorf("adapters[%q]: protocol id: %w", rawID, err)
		}
		s.overrides[id] = strings.TrimSpace(location)
	}
	for i, location := range s.Registry {
		if strings.TrimSpace(location) == "" {
			return fmt.Errorf("registry[%d]: location required", i)
		}
	}

	for i := range s.Liquidity {
		entry := &s.Liquidity[i]
		if strings.TrimSpace(entry.Asset) == "" {
			return fmt.Errorf("liquidity[%d]: asset tag required", i)
		}
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			return fmt.Errorf("liquidity[%d]: %w", i, err)
		}
		entry.amount = amount
	}

	s.alloc = make(map[common.Address]map[string]*uint256.Int, len(s.Alloc))
	for rawAddr, balances := range s.Alloc {
		if !common.IsHexAddress(rawAddr) {
			return fmt.Errorf("alloc: invalid address %q", rawAddr)
		}
		addr := common.HexToAddress(rawAddr)
		parsed := make(map[string]*uint256.Int, len(balances))
		for asset, rawAmount := range balances {
			amount, err := parseAmount(rawAmount)
			if err != nil {
				return fmt.Errorf("alloc[%s][%s]: %w", rawAddr, asset, err)
			}
			parsed[asset] = amount
		}
		s.alloc[addr] = parsed
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

package config

import (
	"fmt"
	"strings"
)

// Validate checks the settings flashd cannot run without.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageLevelDB, StorageBolt, StorageMemory:
	default:
		return fmt.Errorf("storage: unknown engine %q", c.Storage)
	}
	if c.Storage != StorageMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("storage: data dir required for %s", c.Storage)
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.ReadTimeout < 0 || c.RPC.WriteTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	for asset, market := range c.Adapters.ScallopMarkets {
		if strings.TrimSpace(asset) == "" || strings.TrimSpace(market) == "" {
			return fmt.Errorf("adapters: scallop market entries need an asset and a market")
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio must be within [0, 1]")
	}
	if c.Telemetry.Traces || c.Telemetry.Metrics {
		if strings.TrimSpace(c.Environment) == "" {
			return fmt.Errorf("telemetry: environment required when exporting")
		}
	}
	return nil
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage engines understood by flashd.
const (
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
	StorageMemory  = "memory"
)

type Config struct {
	ListenAddress  string    `toml:"ListenAddress" yaml:"listen_address"`
	DataDir        string    `toml:"DataDir" yaml:"data_dir"`
	Storage        string    `toml:"Storage" yaml:"storage"`
	GenesisFile    string    `toml:"GenesisFile" yaml:"genesis_file"`
	AdminTokenFile string    `toml:"AdminTokenFile" yaml:"admin_token_file"`
	Environment    string    `toml:"Environment" yaml:"environment"`
	Adapters       Adapters  `toml:"adapters" yaml:"adapters"`
	Logging        Logging   `toml:"logging" yaml:"logging"`
	Telemetry      Telemetry `toml:"telemetry" yaml:"telemetry"`
	Indexer        Indexer   `toml:"indexer" yaml:"indexer"`
	RPC            RPC       `toml:"rpc" yaml:"rpc"`
}

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
		}
	}

	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./flash-data",
		Storage:       StorageLevelDB,
		Environment:   "local",
		Adapters: Adapters{
			NaviAssets:     []string{"0x2::sui::SUI"},
			BucketAsset:    "0xce7f::buck::BUCK",
			ScallopMarkets: map[string]string{"0x2::sui::SUI": "sui"},
		},
		Logging: Logging{Level: "info"},
		RPC: RPC{
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			ReadTimeout:        15,
			WriteTimeout:       15,
		},
	}
}

func (c *Config) applyDefaults(path string) {
	defaults := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaults.ListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = defaults.Storage
	}
	if strings.TrimSpace(c.AdminTokenFile) == "" {
		c.AdminTokenFile = filepath.Join(filepath.Dir(path), "admin.token")
	}
	if c.Adapters.NaviAssets == nil {
		c.Adapters.NaviAssets = []string{}
	}
	if c.Adapters.ScallopMarkets == nil {
		c.Adapters.ScallopMarkets = map[string]string{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = defaults.RPC.RateLimitPerSecond
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = defaults.RPC.RateLimitBurst
	}
	if c.RPC.ReadTimeout == 0 {
		c.RPC.ReadTimeout = defaults.RPC.ReadTimeout
	}
	if c.RPC.WriteTimeout == 0 {
		c.RPC.WriteTimeout = defaults.RPC.WriteTimeout
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.AdminTokenFile = filepath.Join(filepath.Dir(path), "admin.token")
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

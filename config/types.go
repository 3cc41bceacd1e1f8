package config

// Adapters selects the markets served by the built-in back-ends.
type Adapters struct {
	NaviAssets     []string          `toml:"NaviAssets" yaml:"navi_assets"`
	BucketAsset    string            `toml:"BucketAsset" yaml:"bucket_asset"`
	ScallopMarkets map[string]string `toml:"ScallopMarkets" yaml:"scallop_markets"` // asset -> market
}

// Logging controls the structured logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
}

// Telemetry configures the OTLP exporters. Both signals are off by default.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"` // key=value,key2=value2
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	// SampleRatio is the fraction of root spans kept. Zero means 1.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Indexer configures the settlement archive. An empty DSN disables it.
type Indexer struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// RPC tunes the HTTP API.
type RPC struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"RateLimitBurst" yaml:"rate_limit_burst"`
	ReadTimeout        int     `toml:"ReadTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout       int     `toml:"WriteTimeout" yaml:"write_timeout"` // seconds
}

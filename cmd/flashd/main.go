package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"flashsettle/config"
	"flashsettle/core"
	"flashsettle/core/genesis"
	"flashsettle/indexer"
	"flashsettle/native/flashloan"
	"flashsettle/observability"
	"flashsettle/observability/logging"
	telemetry "flashsettle/observability/otel"
	"flashsettle/rpc"
	"flashsettle/storage"
)

const (
	serviceName    = "flashd"
	genesisPathEnv = "FLASH_GENESIS"
)

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./flashd.toml", "Path to the configuration file (TOML, or YAML by extension)")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides FLASH_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("flashd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, genesisFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromTelemetry(serviceName, cfg.Environment, cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	node, err := core.NewNode(db, core.Options{
		NaviAssets:     cfg.Adapters.NaviAssets,
		BucketAsset:    cfg.Adapters.BucketAsset,
		ScallopMarkets: cfg.Adapters.ScallopMarkets,
		Logger:         logger,
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("build node: %w", err)
	}
	defer node.Close()
	node.AddEmitter(observability.Events())

	genesisPath := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err := bootstrap(ctx, node, genesisPath, cfg.AdminTokenFile, logger); err != nil {
		return err
	}

	var archive *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		archive, err = indexer.Open(dsn, logger)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer archive.Close()
		node.AddEmitter(archive)
	}

	srv, err := rpc.New(rpc.Config{
		ListenAddress:      cfg.ListenAddress,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		ReadTimeout:        time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(cfg.RPC.WriteTimeout) * time.Second,
	}, node, archive, logger)
	if err != nil {
		return err
	}
	logger.Info("flashd started",
		slog.String("storage", cfg.Storage),
		slog.Bool("indexer", archive != nil))
	err = srv.Serve(ctx)
	logger.Info("flashd stopped")
	return err
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.Storage == config.StorageMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	switch cfg.Storage {
	case config.StorageLevelDB:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	case config.StorageBolt:
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage)
	}
}

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(cfgPath)
}

// bootstrap applies the genesis file to an uninitialised state and stores
// the resulting admin token. An initialised state is left untouched.
func bootstrap(ctx context.Context, node *core.Node, genesisPath, tokenFile string, logger *slog.Logger) error {
	_, err := node.Admin().Config(ctx)
	switch {
	case err == nil:
		logger.Info("settlement state already initialised")
		return nil
	case !errors.Is(err, flashloan.ErrNotInitialised):
		return fmt.Errorf("read configuration: %w", err)
	}
	if genesisPath == "" {
		return fmt.Errorf("state is not initialised and no genesis file was provided; supply one via -genesis, %s, or config GenesisFile", genesisPathEnv)
	}

	spec, err := genesis.LoadGenesisSpec(genesisPath)
	if err != nil {
		return err
	}
	// The token is persisted inside the genesis unit so a failed write leaves
	// the state uninitialised.
	var token string
	err = node.State().Atomic(ctx, func(ctx context.Context) error {
		holder, err := genesis.Bootstrap(ctx, node, spec)
		if err != nil {
			return err
		}
		if token, err = holder.Export(); err != nil {
			return err
		}
		if err := writeToken(tokenFile, token); err != nil {
			return fmt.Errorf("write admin token: %w", err)
		}
		return nil
	})
	if errors.Is(err, genesis.ErrAlreadyInitialised) {
		return nil
	}
	if err != nil {
		if token != "" {
			_ = os.Remove(tokenFile)
		}
		return fmt.Errorf("bootstrap genesis: %w", err)
	}
	logger.Info("genesis applied",
		slog.String("genesis", genesisPath),
		slog.String("admin_token_file", tokenFile),
		logging.MaskField("admin_token", token))
	return nil
}

func writeToken(path, token string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

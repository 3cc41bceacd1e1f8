package flashloan

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"flashsettle/core/events"
	"flashsettle/observability/metrics"
)

// ErrAlreadyInitialised is returned when creating a configuration over an
// existing one.
var ErrAlreadyInitialised = errors.New("flashloan: configuration already initialised")

type unitState interface {
	kvState
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func() error) error
	Emit(evt events.Event)
	OnCommit(fn func())
}

// Admin applies configuration and registry mutations. Every mutation is its
// own atomic unit and emits an event once committed.
type Admin struct {
	state   unitState
	store   *Store
	logger  *slog.Logger
	metrics *metrics.FlashMetrics
}

func NewAdmin(st unitState, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		state:   st,
		store:   NewStore(st),
		logger:  logger.With(slog.String("component", "flash-admin")),
		metrics: metrics.Flash(),
	}
}

// Initialise creates the configuration and an empty registry under one new
// admin cap.
func (a *Admin) Initialise(ctx context.Context, treasury common.Address, serviceFeeBps uint64) (*AdminCap, error) {
	var holder *AdminCap
	err := a.state.Atomic(ctx, func(ctx context.Context) error {
		exists, err := a.store.Initialised()
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyInitialised
		}
		created, cfg, err := Create(treasury, serviceFeeBps)
		if err != nil {
			return err
		}
		reg, err := NewRegistry(created)
		if err != nil {
			return err
		}
		if err := a.store.PutConfig(cfg); err != nil {
			return err
		}
		if err := a.store.PutRegistry(reg); err != nil {
			return err
		}
		a.state.Emit(events.FlashConfigUpdated{Field: "treasury", Value: treasury.Hex()})
		a.state.Emit(events.FlashConfigUpdated{Field: "service_fee_bps", Value: strconv.FormatUint(serviceFeeBps, 10)})
		a.state.OnCommit(func() {
			a.logger.Info("flash configuration created",
				slog.String("treasury", treasury.Hex()),
				slog.Uint64("service_fee_bps", serviceFeeBps))
		})
		holder = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return holder, nil
}

// RotateCap replaces the admin secret governing the configuration and the
// registry. holder and every token exported from it lose authority once the
// unit commits.
func (a *Admin) RotateCap(ctx context.Context, holder *AdminCap) (*AdminCap, error) {
	var next *AdminCap
	err := a.state.Atomic(ctx, func(ctx context.Context) error {
		cfg, err := a.store.Config()
		if err != nil {
			return err
		}
		reg, err := a.store.Registry()
		if err != nil {
			return err
		}
		if err := authorize(holder, cfg.AdminID); err != nil {
			return err
		}
		if err := authorize(holder, reg.AdminID); err != nil {
			return err
		}
		created, err := newAdminCap()
		if err != nil {
			return err
		}
		cfg.AdminID = created.ID()
		reg.AdminID = created.ID()
		if err := a.store.PutConfig(cfg); err != nil {
			return err
		}
		if err := a.store.PutRegistry(reg); err != nil {
			return err
		}
		id := created.ID()
		a.state.Emit(events.FlashConfigUpdated{Field: "admin", Value: hex.EncodeToString(id[:8])})
		a.state.OnCommit(func() {
			holder.revoked = true
			a.metrics.ObserveConfigUpdate("admin")
			a.logger.Info("admin cap rotated")
		})
		next = created
		return nil
	})
	if err != nil {
		a.logger.Warn("admin cap rotation rejected", slog.Any("error", err))
		return nil, err
	}
	return next, nil
}

// Config returns a snapshot of the committed configuration.
func (a *Admin) Config(ctx context.Context) (*Config, error) {
	var cfg *Config
	err := a.state.View(ctx, func() error {
		loaded, err := a.store.Config()
		cfg = loaded
		return err
	})
	return cfg, err
}

// Registry returns a snapshot of the committed adapter registry.
func (a *Admin) Registry(ctx context.Context) (*Registry, error) {
	var reg *Registry
	err := a.state.View(ctx, func() error {
		loaded, err := a.store.Registry()
		reg = loaded
		return err
	})
	return reg, err
}

func (a *Admin) update(ctx context.Context, field string, mutate func(cfg *Config) (string, bool, error)) error {
	err := a.state.Atomic(ctx, func(ctx context.Context) error {
		cfg, err := a.store.Config()
		if err != nil {
			return err
		}
		value, changed, err := mutate(cfg)
		if err != nil || !changed {
			return err
		}
		if err := a.store.PutConfig(cfg); err != nil {
			return err
		}
		a.state.Emit(events.FlashConfigUpdated{Field: field, Value: value})
		a.state.OnCommit(func() {
			a.metrics.ObserveConfigUpdate(field)
			a.logger.Info("flash configuration updated", slog.String("field", field), slog.String("value", value))
		})
		return nil
	})
	if err != nil {
		a.logger.Warn("flash configuration update rejected", slog.String("field", field), slog.Any("error", err))
		return err
	}
	return nil
}

func (a *Admin) SetServiceFee(ctx context.Context, holder *AdminCap, bps uint64) error {
	return a.update(ctx, "service_fee_bps", func(cfg *Config) (string, bool, error) {
		if err := cfg.SetServiceFee(holder, bps); err != nil {
			return "", false, err
		}
		return strconv.FormatUint(bps, 10), true, nil
	})
}

func (a *Admin) SetPaused(ctx context.Context, holder *AdminCap, paused bool) error {
	return a.update(ctx, "paused", func(cfg *Config) (string, bool, error) {
		if err := cfg.SetPaused(holder, paused); err != nil {
			return "", false, err
		}
		return strconv.FormatBool(paused), true, nil
	})
}

func (a *Admin) SetTreasury(ctx context.Context, holder *AdminCap, treasury common.Address) error {
	return a.update(ctx, "treasury", func(cfg *Config) (string, bool, error) {
		if err := cfg.SetTreasury(holder, treasury); err != nil {
			return "", false, err
		}
		return treasury.Hex(), true, nil
	})
}

// AddAllowedAsset is idempotent; re-adding a member emits nothing.
func (a *Admin) AddAllowedAsset(ctx context.Context, holder *AdminCap, tag string) error {
	return a.update(ctx, "allowed_assets", func(cfg *Config) (string, bool, error) {
		added, err := cfg.AddAllowedAsset(holder, tag)
		return tag, added, err
	})
}

func (a *Admin) SetAdapterLocation(ctx context.Context, holder *AdminCap, id uint64, location string) error {
	return a.update(ctx, "adapters", func(cfg *Config) (string, bool, error) {
		if err := cfg.SetAdapterLocation(holder, id, location); err != nil {
			return "", false, err
		}
		return strconv.FormatUint(id, 10) + "=" + cfg.AdapterLocation(id), true, nil
	})
}

// AppendAdapter registers location and returns its protocol id.
func (a *Admin) AppendAdapter(ctx context.Context, holder *AdminCap, location string) (uint64, error) {
	var id uint64
	err := a.updateRegistry(ctx, func(reg *Registry) (events.FlashAdapterRegistered, error) {
		appended, err := reg.Append(holder, location)
		id = appended
		return events.FlashAdapterRegistered{ProtocolID: appended, Location: location}, err
	})
	return id, err
}

func (a *Admin) UpdateAdapter(ctx context.Context, holder *AdminCap, id uint64, location string) error {
	return a.updateRegistry(ctx, func(reg *Registry) (events.FlashAdapterRegistered, error) {
		err := reg.Update(holder, id, location)
		return events.FlashAdapterRegistered{ProtocolID: id, Location: location, Updated: true}, err
	})
}

func (a *Admin) updateRegistry(ctx context.Context, mutate func(reg *Registry) (events.FlashAdapterRegistered, error)) error {
	err := a.state.Atomic(ctx, func(ctx context.Context) error {
		reg, err := a.store.Registry()
		if err != nil {
			return err
		}
		evt, err := mutate(reg)
		if err != nil {
			return err
		}
		if err := a.store.PutRegistry(reg); err != nil {
			return err
		}
		a.state.Emit(evt)
		a.state.OnCommit(func() {
			a.metrics.ObserveAdapterChange()
			a.logger.Info("adapter registry updated",
				slog.Uint64("protocol", evt.ProtocolID),
				slog.String("location", evt.Location))
		})
		return nil
	})
	if err != nil {
		a.logger.Warn("adapter registry update rejected", slog.Any("error", err))
		return err
	}
	return nil
}

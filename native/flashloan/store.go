package flashloan

import (
	"errors"
	"fmt"
)

var (
	configKey   = []byte("flash/config")
	registryKey = []byte("flash/registry")
)

// ErrNotInitialised is returned when the configuration has not been created.
var ErrNotInitialised = errors.New("flashloan: configuration not initialised")

type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Store persists the configuration and registry in state so they roll back
// with the unit that changed them.
type Store struct {
	st kvState
}

func NewStore(st kvState) *Store {
	return &Store{st: st}
}

func (s *Store) Config() (*Config, error) {
	cfg := new(Config)
	ok, err := s.st.KVGet(configKey, cfg)
	if err != nil {
		return nil, fmt.Errorf("flashloan: load config: %w", err)
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	return cfg, nil
}

func (s *Store) PutConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("flashloan: nil config")
	}
	return s.st.KVPut(configKey, cfg)
}

// Registry loads the adapter registry. A missing registry is empty.
func (s *Store) Registry() (*Registry, error) {
	reg := new(Registry)
	ok, err := s.st.KVGet(registryKey, reg)
	if err != nil {
		return nil, fmt.Errorf("flashloan: load registry: %w", err)
	}
	if !ok {
		return &Registry{Locations: []string{}}, nil
	}
	return reg, nil
}

func (s *Store) PutRegistry(reg *Registry) error {
	if reg == nil {
		return fmt.Errorf("flashloan: nil registry")
	}
	return s.st.KVPut(registryKey, reg)
}

// Initialised reports whether a configuration exists.
func (s *Store) Initialised() (bool, error) {
	return s.st.KVGet(configKey, nil)
}

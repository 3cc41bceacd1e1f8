package flashloan

import (
	"errors"
	"fmt"
	"strings"

	flasherrors "flashsettle/core/errors"
)

var errEmptyLocation = errors.New("flashloan: adapter location required")

// Registry maps protocol ids to adapter locations. Entries are only appended
// or updated in place, so an id is never reused.
type Registry struct {
	AdminID   [32]byte
	Locations []string
}

// NewRegistry creates an empty registry governed by cap.
func NewRegistry(holder *AdminCap) (*Registry, error) {
	if !holder.Valid() {
		return nil, fmt.Errorf("%w: admin cap missing or revoked", flasherrors.ErrForbidden)
	}
	return &Registry{AdminID: holder.ID(), Locations: []string{}}, nil
}

// Append registers location under the next free id.
func (r *Registry) Append(holder *AdminCap, location string) (uint64, error) {
	if err := authorize(holder, r.AdminID); err != nil {
		return 0, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return 0, errEmptyLocation
	}
	if r.Len() > MaxProtocolID {
		return 0, fmt.Errorf("%w: registry full at %d entries", flasherrors.ErrIndexOutOfBounds, r.Len())
	}
	r.Locations = append(r.Locations, location)
	return uint64(len(r.Locations) - 1), nil
}

// Update repoints an existing id.
func (r *Registry) Update(holder *AdminCap, id uint64, location string) error {
	if err := authorize(holder, r.AdminID); err != nil {
		return err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return errEmptyLocation
	}
	if id >= r.Len() {
		return fmt.Errorf("%w: protocol %d of %d", flasherrors.ErrIndexOutOfBounds, id, r.Len())
	}
	r.Locations[id] = location
	return nil
}

func (r *Registry) Lookup(id uint64) (string, error) {
	if id >= r.Len() {
		return "", fmt.Errorf("%w: protocol %d of %d", flasherrors.ErrIndexOutOfBounds, id, r.Len())
	}
	return r.Locations[id], nil
}

func (r *Registry) Len() uint64 {
	if r == nil {
		return 0
	}
	return uint64(len(r.Locations))
}

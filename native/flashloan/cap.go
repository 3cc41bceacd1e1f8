package flashloan

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"

	flasherrors "flashsettle/core/errors"
)

const adminSecretLen = 32

// noCopy flags accidental copies of AdminCap under go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// AdminCap is the administrative authority over a configuration and its
// adapter registry. Possession is authorisation; the configuration only
// records a digest of the cap's secret.
type AdminCap struct {
	_       noCopy
	secret  [adminSecretLen]byte
	revoked bool
}

func newAdminCap() (*AdminCap, error) {
	holder := new(AdminCap)
	if _, err := rand.Read(holder.secret[:]); err != nil {
		return nil, fmt.Errorf("flashloan: generate admin secret: %w", err)
	}
	return holder, nil
}

// RestoreAdminCap rebuilds a cap from the hex secret produced by Export.
func RestoreAdminCap(encoded string) (*AdminCap, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil || len(raw) != adminSecretLen {
		return nil, fmt.Errorf("%w: malformed admin token", flasherrors.ErrForbidden)
	}
	holder := new(AdminCap)
	copy(holder.secret[:], raw)
	return holder, nil
}

// ID returns the digest recorded by the objects this cap governs.
func (c *AdminCap) ID() [32]byte {
	if c == nil {
		return [32]byte{}
	}
	return blake3.Sum256(c.secret[:])
}

// Valid reports whether the cap can still authorise mutations.
func (c *AdminCap) Valid() bool {
	return c != nil && !c.revoked
}

// Transfer moves the authority into a new cap and revokes c. The secret is
// unchanged, so earlier exports keep their authority; Admin.RotateCap
// replaces the secret itself.
func (c *AdminCap) Transfer() (*AdminCap, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: admin cap revoked", flasherrors.ErrForbidden)
	}
	next := &AdminCap{secret: c.secret}
	c.revoked = true
	return next, nil
}

// Export renders the secret so the cap can present it later.
func (c *AdminCap) Export() (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: admin cap revoked", flasherrors.ErrForbidden)
	}
	return hex.EncodeToString(c.secret[:]), nil
}

func authorize(holder *AdminCap, admin [32]byte) error {
	if !holder.Valid() {
		return fmt.Errorf("%w: admin cap missing or revoked", flasherrors.ErrForbidden)
	}
	if holder.ID() != admin {
		return fmt.Errorf("%w: admin cap does not govern this object", flasherrors.ErrForbidden)
	}
	return nil
}

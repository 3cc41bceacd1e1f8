package state

import (
	"fmt"

	flasherrors "flashsettle/core/errors"
)

var (
	errLoanOutstanding = flasherrors.ErrLoanOutstanding
	errReceiptInvalid  = flasherrors.ErrReceiptInvalid
)

// ResourceID identifies a live linear resource within the manager. Identifiers
// are never reused, even when the unit that opened them is reverted.
type ResourceID uint64

// OpenResource registers a value that must be consumed exactly once before the
// enclosing unit may complete. The digest binds the handle to the resource's
// contents.
func (m *Manager) OpenResource(digest [32]byte) ResourceID {
	m.nextResource++
	id := m.nextResource
	m.live[id] = digest
	m.journal = append(m.journal, resourceOpened{id: id})
	return id
}

// ConsumeResource retires a live resource. Unknown, already consumed or
// tampered handles are rejected.
func (m *Manager) ConsumeResource(id ResourceID, digest [32]byte) error {
	recorded, ok := m.live[id]
	if !ok {
		return fmt.Errorf("%w: handle %d", errReceiptInvalid, id)
	}
	if recorded != digest {
		return fmt.Errorf("%w: digest mismatch for handle %d", errReceiptInvalid, id)
	}
	delete(m.live, id)
	m.journal = append(m.journal, resourceConsumed{id: id, digest: recorded})
	return nil
}

// LiveResources reports how many linear resources are outstanding.
func (m *Manager) LiveResources() int {
	return len(m.live)
}

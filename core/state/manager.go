package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"flashsettle/core/events"
	"flashsettle/storage"
)

// Manager provides journaled key-value access to settlement state. Writes are
// staged in an overlay until the enclosing atomic unit commits; any failure
// reverts the overlay, open linear resources and buffered events together.
//
// Outside of Atomic and View the manager is not safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry

	live         map[ResourceID][32]byte
	nextResource ResourceID

	pending []events.Event
	hooks   []func()
	emitter events.Emitter
}

// NewManager creates a state manager on top of the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string][]byte),
		live:    make(map[ResourceID][32]byte),
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures where committed events are delivered. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if value, ok := m.dirty[string(hashed)]; ok {
		return value, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) set(hashed []byte, value []byte) {
	key := string(hashed)
	prev, existed := m.dirty[key]
	m.journal = append(m.journal, kvChange{key: key, prev: prev, existed: existed})
	m.dirty[key] = value
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.set(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Emit buffers an event until the enclosing unit commits. Reverting the unit
// discards it.
func (m *Manager) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m.pending = append(m.pending, evt)
	m.journal = append(m.journal, eventBuffered{})
}

// Record appends an undo step for state held outside the overlay, such as
// in-flight coins. Reverting past this point runs undo.
func (m *Manager) Record(undo func()) {
	if undo == nil {
		return
	}
	m.journal = append(m.journal, undoStep(undo))
}

// OnCommit schedules fn to run once the outermost unit has committed and
// released the manager. Reverting the unit discards it.
func (m *Manager) OnCommit(fn func()) {
	if fn == nil {
		return
	}
	m.hooks = append(m.hooks, fn)
	m.journal = append(m.journal, hookScheduled{})
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write, resource transition and buffered event
// recorded after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		m.journal[i].revert(m)
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Commit flushes staged writes to storage in a single batch and returns the
// events buffered since the previous commit. It refuses to commit while any
// linear resource is still live.
func (m *Manager) Commit() ([]events.Event, error) {
	if n := len(m.live); n > 0 {
		return nil, fmt.Errorf("%w: %d live", errLoanOutstanding, n)
	}
	if len(m.dirty) > 0 {
		keys := make([]string, 0, len(m.dirty))
		for key := range m.dirty {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		batch := m.db.NewBatch()
		for _, key := range keys {
			batch.Put([]byte(key), m.dirty[key])
		}
		if err := m.db.Write(batch); err != nil {
			return nil, fmt.Errorf("state: commit: %w", err)
		}
	}
	committed := m.pending
	m.dirty = make(map[string][]byte)
	m.journal = nil
	m.pending = nil
	m.hooks = nil
	return committed, nil
}

// Pending reports the number of staged writes awaiting commit.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

package state

// journalEntry undoes one recorded mutation.
type journalEntry interface {
	revert(m *Manager)
}

type kvChange struct {
	key     string
	prev    []byte
	existed bool
}

func (c kvChange) revert(m *Manager) {
	if c.existed {
		m.dirty[c.key] = c.prev
		return
	}
	delete(m.dirty, c.key)
}

type resourceOpened struct {
	id ResourceID
}

func (r resourceOpened) revert(m *Manager) {
	delete(m.live, r.id)
}

type resourceConsumed struct {
	id     ResourceID
	digest [32]byte
}

func (r resourceConsumed) revert(m *Manager) {
	m.live[r.id] = r.digest
}

type eventBuffered struct{}

func (eventBuffered) revert(m *Manager) {
	if n := len(m.pending); n > 0 {
		m.pending = m.pending[:n-1]
	}
}

type hookScheduled struct{}

func (hookScheduled) revert(m *Manager) {
	if n := len(m.hooks); n > 0 {
		m.hooks = m.hooks[:n-1]
	}
}

type undoStep func()

func (u undoStep) revert(*Manager) { u() }

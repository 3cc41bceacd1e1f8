package state

import (
	"context"
	"fmt"

	"flashsettle/core/events"
)

type unitKey struct{}

func (m *Manager) inUnit(ctx context.Context) bool {
	owner, _ := ctx.Value(unitKey{}).(*Manager)
	return owner == m
}

// Atomic runs fn as one indivisible unit of execution. Outermost units are
// serialised on the manager and commit on success; units nested through the
// context passed to fn only roll back their own effects. A unit that returns
// while holding more live linear resources than it started with is reverted
// with ErrLoanOutstanding. Panics inside fn are converted into errors.
func (m *Manager) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.inUnit(ctx) {
		return m.run(ctx, fn)
	}

	m.mu.Lock()
	committed, hooks, emitter, err := m.runOutermost(context.WithValue(ctx, unitKey{}, m), fn)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	for _, evt := range committed {
		emitter.Emit(evt)
	}
	for _, hook := range hooks {
		hook()
	}
	return nil
}

func (m *Manager) runOutermost(ctx context.Context, fn func(ctx context.Context) error) ([]events.Event, []func(), events.Emitter, error) {
	snap := m.Snapshot()
	if err := m.run(ctx, fn); err != nil {
		return nil, nil, nil, err
	}
	hooks := m.hooks
	committed, err := m.Commit()
	if err != nil {
		m.RevertToSnapshot(snap)
		return nil, nil, nil, err
	}
	return committed, hooks, m.emitter, nil
}

func (m *Manager) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	snap := m.Snapshot()
	live := len(m.live)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("state: unit aborted: %v", r)
		}
		if err == nil && len(m.live) > live {
			err = fmt.Errorf("%w: %d live", errLoanOutstanding, len(m.live)-live)
		}
		if err != nil {
			m.RevertToSnapshot(snap)
		}
	}()
	return fn(ctx)
}

// View runs fn with serialised read access to state. Calls made from inside a
// unit reuse the unit's access.
func (m *Manager) View(ctx context.Context, fn func() error) error {
	if ctx != nil && m.inUnit(ctx) {
		return fn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

package operations

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager is a process-wide registry of Operation records. It fans out
// change events to subscribers the way an in-process event bus would,
// adapted here to carry Operation snapshots instead of generic events.
type Manager struct {
	mu            sync.Mutex
	operations    map[string]*Operation
	subscribers   map[uint64]chan Snapshot
	nextSubID     uint64
	pruneHorizon  time.Duration
	history       *HistoryStore // optional; nil disables persistence
}

// NewManager returns a Manager that prunes terminal operations older
// than pruneHorizon from its in-memory registry. A nil history disables
// persisted operation history.
func NewManager(pruneHorizon time.Duration, history *HistoryStore) *Manager {
	return &Manager{
		operations:   make(map[string]*Operation),
		subscribers:  make(map[uint64]chan Snapshot),
		pruneHorizon: pruneHorizon,
		history:      history,
	}
}

// Subscribe returns a channel receiving every Operation change, plus an
// unsubscribe function.
func (m *Manager) Subscribe(bufSize int) (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Snapshot, bufSize)
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(ch)
		}
	}
}

func (m *Manager) publish(snap Snapshot) {
	m.mu.Lock()
	subs := make([]chan Snapshot, 0, len(m.subscribers))
	for _, ch := range m.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// slow subscriber, drop the update rather than block the worker
		}
	}
}

// Work is the function shape submitted to Run: it receives a Handle for
// progress reporting and cancellation, and returns an error on failure.
type Work func(h *Handle) error

// Run registers a new Operation of the given kind against savePath,
// starts work in its own goroutine, and returns the operation's id
// immediately. Cancel stops the operation's context; work functions
// must check Handle.Canceled() at coarse boundaries to honor it
// promptly.
func (m *Manager) Run(parent context.Context, kind, savePath string, work Work) (id string, cancel context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(parent)

	now := time.Now()
	op := &Operation{
		ID:        newOperationID(),
		Kind:      kind,
		SavePath:  savePath,
		Status:    StatusPending,
		StartedAt: now,
		UpdatedAt: now,
		cancel:    cancelFn,
	}

	m.mu.Lock()
	m.operations[op.ID] = op
	m.mu.Unlock()

	if m.history != nil {
		m.history.record(op.snapshot())
	}

	go func() {
		m.mu.Lock()
		op.Status = StatusRunning
		op.UpdatedAt = time.Now()
		snap := op.snapshot()
		m.mu.Unlock()
		m.publish(snap)

		err := work(&Handle{ctx: ctx, mgr: m, op: op})

		m.mu.Lock()
		op.EndedAt = time.Now()
		op.UpdatedAt = op.EndedAt
		switch {
		case ctx.Err() == context.Canceled:
			op.Status = StatusCanceled
		case err != nil:
			op.Status = StatusFailed
			op.Err = err
		default:
			op.Status = StatusCompleted
		}
		final := op.snapshot()
		m.mu.Unlock()

		m.publish(final)
		if m.history != nil {
			m.history.record(final)
		}
	}()

	return op.ID, cancelFn
}

// Get returns a snapshot of the operation with id, or false if unknown.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return Snapshot{}, false
	}
	return op.snapshot(), true
}

// Cancel requests cancellation of the operation with id.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return fmt.Errorf("operation %s not found", id)
	}
	op.cancel()
	return nil
}

// Prune removes terminal operations older than the manager's horizon
// from the in-memory registry. Persisted history, if enabled, is kept.
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, op := range m.operations {
		if !op.Status.Terminal() {
			continue
		}
		if now.Sub(op.EndedAt) >= m.pruneHorizon {
			delete(m.operations, id)
			pruned++
		}
	}
	return pruned
}

// Package operations implements the process-wide registry of
// long-running Operation records: submission with a cancellation
// handle, a change stream for external subscribers, and horizon-based
// pruning of finished records.
package operations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is an Operation's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Operation is one long-running unit of work (an extract, a rebuild, an
// import/export) tracked by the Manager.
type Operation struct {
	ID          string
	Kind        string
	SavePath    string
	Status      Status
	CurrentStep int
	TotalSteps  int
	Message     string
	Err         error
	StartedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     time.Time

	cancel context.CancelFunc
}

// Snapshot is an immutable copy of an Operation's state, safe to hand
// to subscribers without sharing the live record's mutex.
type Snapshot struct {
	ID          string
	Kind        string
	SavePath    string
	Status      Status
	CurrentStep int
	TotalSteps  int
	Message     string
	Err         error
	StartedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     time.Time
}

func (o *Operation) snapshot() Snapshot {
	return Snapshot{
		ID:          o.ID,
		Kind:        o.Kind,
		SavePath:    o.SavePath,
		Status:      o.Status,
		CurrentStep: o.CurrentStep,
		TotalSteps:  o.TotalSteps,
		Message:     o.Message,
		Err:         o.Err,
		StartedAt:   o.StartedAt,
		UpdatedAt:   o.UpdatedAt,
		EndedAt:     o.EndedAt,
	}
}

// Handle is given to the work function submitted to Manager.Run: it
// reports progress and observes cancellation.
type Handle struct {
	ctx context.Context
	mgr *Manager
	op  *Operation
}

// Context returns the operation's cancellation context.
func (h *Handle) Context() context.Context { return h.ctx }

// Progress updates the operation's step counters and publishes a
// change event. Step counts must be monotonically non-decreasing for a
// single operation.
func (h *Handle) Progress(current, total int, message string) {
	h.mgr.mu.Lock()
	h.op.CurrentStep = current
	h.op.TotalSteps = total
	h.op.Message = message
	h.op.UpdatedAt = time.Now()
	snap := h.op.snapshot()
	h.mgr.mu.Unlock()
	h.mgr.publish(snap)
}

// Canceled reports whether the caller has requested cancellation.
func (h *Handle) Canceled() bool {
	select {
	case <-h.ctx.Done():
		return true
	default:
		return false
	}
}

func newOperationID() string {
	return uuid.New().String()
}

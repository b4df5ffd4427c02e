package operations

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerRunCompletesSuccessfully(t *testing.T) {
	mgr := NewManager(time.Hour, nil)
	ch, unsubscribe := mgr.Subscribe(16)
	defer unsubscribe()

	id, _ := mgr.Run(context.Background(), "extract", "/saves/test-world", func(h *Handle) error {
		h.Progress(1, 2, "reading region files")
		h.Progress(2, 2, "done")
		return nil
	})

	var last Snapshot
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			last = snap
			if snap.Status.Terminal() {
				goto done
			}
		case <-deadline:
			t.Fatal("timed out waiting for operation to complete")
		}
	}
done:
	if last.ID != id {
		t.Errorf("expected final snapshot for %s, got %s", id, last.ID)
	}
	if last.Status != StatusCompleted {
		t.Errorf("expected StatusCompleted, got %s", last.Status)
	}
	if last.CurrentStep != 2 || last.TotalSteps != 2 {
		t.Errorf("expected final progress 2/2, got %d/%d", last.CurrentStep, last.TotalSteps)
	}
}

func TestManagerRunRecordsFailure(t *testing.T) {
	mgr := NewManager(time.Hour, nil)
	wantErr := errors.New("region read failed")

	id, _ := mgr.Run(context.Background(), "rebuild", "/saves/test-world", func(h *Handle) error {
		return wantErr
	})

	snap := waitForTerminal(t, mgr, id)
	if snap.Status != StatusFailed {
		t.Errorf("expected StatusFailed, got %s", snap.Status)
	}
	if snap.Err == nil || snap.Err.Error() != wantErr.Error() {
		t.Errorf("expected error %v, got %v", wantErr, snap.Err)
	}
}

func TestManagerCancelStopsOperation(t *testing.T) {
	mgr := NewManager(time.Hour, nil)
	started := make(chan struct{})

	id, cancel := mgr.Run(context.Background(), "extract", "/saves/test-world", func(h *Handle) error {
		close(started)
		for !h.Canceled() {
			time.Sleep(time.Millisecond)
		}
		return nil
	})

	<-started
	cancel()

	snap := waitForTerminal(t, mgr, id)
	if snap.Status != StatusCanceled {
		t.Errorf("expected StatusCanceled, got %s", snap.Status)
	}
}

func TestManagerProgressStepsAreMonotonic(t *testing.T) {
	mgr := NewManager(time.Hour, nil)
	ch, unsubscribe := mgr.Subscribe(16)
	defer unsubscribe()

	mgr.Run(context.Background(), "extract", "/saves/test-world", func(h *Handle) error {
		for i := 1; i <= 5; i++ {
			h.Progress(i, 5, "")
		}
		return nil
	})

	lastStep := -1
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.CurrentStep < lastStep {
				t.Fatalf("progress went backwards: %d after %d", snap.CurrentStep, lastStep)
			}
			lastStep = snap.CurrentStep
			if snap.Status.Terminal() {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for operation to complete")
		}
	}
}

func TestManagerPruneRemovesOldTerminalOperations(t *testing.T) {
	mgr := NewManager(time.Millisecond, nil)

	id, _ := mgr.Run(context.Background(), "extract", "/saves/test-world", func(h *Handle) error {
		return nil
	})
	waitForTerminal(t, mgr, id)

	time.Sleep(5 * time.Millisecond)
	if pruned := mgr.Prune(time.Now()); pruned != 1 {
		t.Errorf("expected 1 operation pruned, got %d", pruned)
	}

	if _, ok := mgr.Get(id); ok {
		t.Error("expected pruned operation to be gone from the registry")
	}
}

func TestManagerUnsubscribeStopsDelivery(t *testing.T) {
	mgr := NewManager(time.Hour, nil)
	ch, unsubscribe := mgr.Subscribe(16)
	unsubscribe()

	mgr.Run(context.Background(), "extract", "/saves/test-world", func(h *Handle) error {
		return nil
	})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Error("expected channel to be closed promptly after unsubscribe")
	}
}

func waitForTerminal(t *testing.T, mgr *Manager, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := mgr.Get(id); ok && snap.Status.Terminal() {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("operation %s did not reach a terminal state in time", id)
	return Snapshot{}
}

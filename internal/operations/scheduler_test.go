package operations

import (
	"context"
	"testing"
	"time"
)

func TestNewPrunerRejectsInvalidSchedule(t *testing.T) {
	mgr := NewManager(time.Hour, nil)
	if _, err := NewPruner(mgr, "not a cron expression"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestPrunerStartStopIsClean(t *testing.T) {
	mgr := NewManager(time.Millisecond, nil)
	pruner, err := NewPruner(mgr, "* * * * *")
	if err != nil {
		t.Fatalf("parsing schedule: %v", err)
	}

	pruner.Start()
	pruner.Start() // second Start must be a no-op, not a second goroutine

	id, _ := mgr.Run(context.Background(), "extract", "/saves/test-world", func(h *Handle) error {
		return nil
	})
	waitForTerminal(t, mgr, id)

	done := make(chan struct{})
	go func() {
		pruner.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

package operations

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryStoreRecordAndRecent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "operations.db")
	store, err := OpenHistoryStore(dbPath)
	if err != nil {
		t.Fatalf("OpenHistoryStore: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	store.record(Snapshot{
		ID:          "op-1",
		Kind:        "extract",
		Status:      StatusRunning,
		CurrentStep: 1,
		TotalSteps:  4,
		StartedAt:   now,
	})
	store.record(Snapshot{
		ID:          "op-1",
		Kind:        "extract",
		Status:      StatusCompleted,
		CurrentStep: 4,
		TotalSteps:  4,
		StartedAt:   now,
		EndedAt:     now.Add(time.Second),
	})

	rows, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single upserted row for op-1, got %d", len(rows))
	}
	if rows[0].Status != StatusCompleted {
		t.Errorf("expected latest status StatusCompleted, got %s", rows[0].Status)
	}
	if rows[0].CurrentStep != 4 {
		t.Errorf("expected latest step 4, got %d", rows[0].CurrentStep)
	}
}

func TestHistoryStoreRecordsFailureMessage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "operations.db")
	store, err := OpenHistoryStore(dbPath)
	if err != nil {
		t.Fatalf("OpenHistoryStore: %v", err)
	}
	defer store.Close()

	store.record(Snapshot{
		ID:     "op-2",
		Kind:   "rebuild",
		Status: StatusFailed,
		Err:    errTest("chunk truncated"),
	})

	rows, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 || rows[0].Err == nil {
		t.Fatalf("expected one failed row with an error recorded, got %+v", rows)
	}
	if rows[0].Err.Error() != "chunk truncated" {
		t.Errorf("expected error text preserved, got %q", rows[0].Err.Error())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

package operations

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// historyRecord is the persisted row for one Operation snapshot write.
// Rows are upserted by OperationID so the table holds latest state per
// operation rather than a full event log.
type historyRecord struct {
	OperationID string `gorm:"primaryKey;column:operation_id"`
	Kind        string
	SavePath    string
	Status      string
	CurrentStep int
	TotalSteps  int
	Message     string
	ErrText     string
	StartedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     time.Time
}

func (historyRecord) TableName() string { return "operation_history" }

// HistoryStore persists operation snapshots to a SQLite database so that
// completed runs remain inspectable after the process restarts.
type HistoryStore struct {
	db *gorm.DB
}

// OpenHistoryStore opens (creating if needed) a SQLite-backed history
// store at dbPath and migrates its schema.
func OpenHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening operation history database: %w", err)
	}

	if err := db.AutoMigrate(&historyRecord{}); err != nil {
		return nil, fmt.Errorf("migrating operation history schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close releases the underlying database handle.
func (h *HistoryStore) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (h *HistoryStore) record(snap Snapshot) {
	row := historyRecord{
		OperationID: snap.ID,
		Kind:        snap.Kind,
		SavePath:    snap.SavePath,
		Status:      string(snap.Status),
		CurrentStep: snap.CurrentStep,
		TotalSteps:  snap.TotalSteps,
		Message:     snap.Message,
		StartedAt:   snap.StartedAt,
		UpdatedAt:   snap.UpdatedAt,
		EndedAt:     snap.EndedAt,
	}
	if snap.Err != nil {
		row.ErrText = snap.Err.Error()
	}
	// best-effort: history is a convenience log, not a ledger the engine
	// depends on for correctness, so a write failure here is swallowed
	// rather than surfaced to the operation's caller.
	h.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row)
}

// Recent returns the most recently started operations, newest first,
// up to limit rows.
func (h *HistoryStore) Recent(limit int) ([]Snapshot, error) {
	var rows []historyRecord
	if err := h.db.Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying operation history: %w", err)
	}

	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		snap := Snapshot{
			ID:          r.OperationID,
			Kind:        r.Kind,
			SavePath:    r.SavePath,
			Status:      Status(r.Status),
			CurrentStep: r.CurrentStep,
			TotalSteps:  r.TotalSteps,
			Message:     r.Message,
			StartedAt:   r.StartedAt,
			UpdatedAt:   r.UpdatedAt,
			EndedAt:     r.EndedAt,
		}
		if r.ErrText != "" {
			snap.Err = fmt.Errorf("%s", r.ErrText)
		}
		out[i] = snap
	}
	return out, nil
}

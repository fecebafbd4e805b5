package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStore provides database operations for sync runs.
type RunStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the sync_runs and sync_locks tables.
func (s *RunStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncRun{}, &runLock{})
}

// RunListFilter defines filters for listing runs.
type RunListFilter struct {
	Kind   string
	Target string
	State  string
}

// Start records a new running run.
func (s *RunStore) Start(kind, target string) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Target:    target,
		State:     RunStateRunning,
		StartedAt: s.now(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// Complete marks a run as finished with the given counts. A run with
// failed records ends as partial.
func (s *RunStore) Complete(runID string, c Counts) error {
	run, err := s.Get(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	state := RunStateSucceeded
	if c.Failed > 0 {
		state = RunStatePartial
	}
	now := s.now()
	result := s.db.Model(&SyncRun{}).Where("id = ?", runID).Updates(map[string]any{
		"state":       state,
		"finished_at": now,
		"total":       c.Total,
		"succeeded":   c.Succeeded,
		"failed":      c.Failed,
		"skipped":     c.Skipped,
		"warnings":    c.Warnings,
		"last_error":  c.LastError,
		"duration_ms": now.Sub(run.StartedAt).Milliseconds(),
	})
	if result.Error != nil {
		return fmt.Errorf("complete run: %w", result.Error)
	}
	return nil
}

// Fail marks a run as failed before it could process its records.
func (s *RunStore) Fail(runID string, errMsg string) error {
	now := s.now()
	result := s.db.Model(&SyncRun{}).Where("id = ?", runID).Updates(map[string]any{
		"state":       RunStateFailed,
		"finished_at": now,
		"last_error":  errMsg,
	})
	if result.Error != nil {
		return fmt.Errorf("fail run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// Get retrieves a run by ID. A missing run yields nil, nil.
func (s *RunStore) Get(runID string) (*SyncRun, error) {
	var run SyncRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// LastSuccessfulRun returns the start time of the latest finished run of
// kind against target that synced at least one record.
func (s *RunStore) LastSuccessfulRun(kind, target string) (time.Time, bool, error) {
	var run SyncRun
	err := s.db.Where("kind = ? AND target = ? AND state IN ? AND succeeded > 0",
		kind, target, []RunState{RunStateSucceeded, RunStatePartial}).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last successful run: %w", err)
	}
	return run.StartedAt, true, nil
}

// List returns the most recent runs matching filter, newest first.
func (s *RunStore) List(filter RunListFilter, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}

	q := s.db.Model(&SyncRun{})
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Target != "" {
		q = q.Where("target = ?", filter.Target)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}

	var runs []SyncRun
	if err := q.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteOlderThan removes finished runs older than the given cutoff.
func (s *RunStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]RunState{RunStateSucceeded, RunStatePartial, RunStateFailed}, cutoff).
		Delete(&SyncRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

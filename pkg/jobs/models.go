// Package jobs records the history of sync runs. The most recent
// successful run of a kind is the "last run" timestamp used to filter the
// next source query.
package jobs

import (
	"time"
)

// RunState represents the lifecycle state of a sync run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	// RunStatePartial means the run finished but some records failed.
	RunStatePartial RunState = "partial"
	RunStateFailed  RunState = "failed"
)

// Run kinds.
const (
	KindRules    = "rules"
	KindProfiles = "profiles"
)

// SyncRun is the GORM model for one sync run.
type SyncRun struct {
	ID         string     `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	Kind       string     `gorm:"column:kind;index:idx_run_kind_target,priority:1;not null" json:"kind"`
	Target     string     `gorm:"column:target;index:idx_run_kind_target,priority:2;not null" json:"target"`
	State      RunState   `gorm:"column:state;index:idx_run_state;not null;default:running" json:"state"`
	StartedAt  time.Time  `gorm:"column:started_at;index:idx_run_started;not null" json:"startedAt"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finishedAt,omitempty"`
	Total      int        `gorm:"column:total" json:"total"`
	Succeeded  int        `gorm:"column:succeeded" json:"succeeded"`
	Failed     int        `gorm:"column:failed" json:"failed"`
	Skipped    int        `gorm:"column:skipped" json:"skipped"`
	Warnings   int        `gorm:"column:warnings" json:"warnings"`
	LastError  string     `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	DurationMs int64      `gorm:"column:duration_ms" json:"durationMs"`
}

// TableName returns the GORM table name.
func (SyncRun) TableName() string { return "sync_runs" }

// IsTerminal returns true if the run has finished.
func (r *SyncRun) IsTerminal() bool {
	switch r.State {
	case RunStateSucceeded, RunStatePartial, RunStateFailed:
		return true
	}
	return false
}

// Counts are the per-record outcomes of a finished run.
type Counts struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Warnings  int
	// LastError is the text of the aggregated record failures, if any.
	LastError string
}

// Package connector drives a sync run: it queries the source, fans the
// records out to a target on a bounded pool, joins them and reports a
// per-run summary.
package connector

import (
	"context"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/record"
)

// Outcome is the result of syncing one record.
type Outcome struct {
	Key string `json:"key"`
	// Skipped records were not sent; Reason says why.
	Skipped  bool     `json:"skipped,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// Job is set when the record was written as an import job.
	Job *catalog.JobResult `json:"job,omitempty"`
}

// Target receives rule records.
type Target interface {
	// Name identifies the target in logs and run history.
	Name() string
	// Prepare runs once before any record is synced.
	Prepare(ctx context.Context) error
	SyncRule(ctx context.Context, rec record.Record) (Outcome, error)
}

// ProfileTarget is a Target that also receives profile records.
type ProfileTarget interface {
	Target
	SyncProfile(ctx context.Context, rec record.Record) (Outcome, error)
}

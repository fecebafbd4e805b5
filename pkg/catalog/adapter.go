package catalog

import (
	"context"
	"encoding/json"
)

// Job states reported by the import job API.
const (
	JobCompleted = "COMPLETED"
	JobError     = "ERROR"
)

// JobResult is the outcome of a bulk import job.
type JobResult struct {
	ID      string          `json:"id"`
	State   string          `json:"state"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Warning marks a job that stopped in a state other than COMPLETED or
	// ERROR. The job may or may not have been applied.
	Warning bool `json:"warning,omitempty"`
}

// Adapter is the capability set a catalog target exposes to the
// connector: single-entity upserts, relation upserts and bulk batches.
type Adapter interface {
	// UpsertEntity creates the community, domain or asset described by e,
	// or finds the existing one, then writes its attributes and status.
	// It returns the catalog id.
	UpsertEntity(ctx context.Context, e ImportEntity) (string, error)
	// UpsertRelation creates the relation, replacing an existing match
	// unless args.NoDeletion is set.
	UpsertRelation(ctx context.Context, args RelationArgs) (Relation, error)
	// SubmitBatch imports the descriptors as one job.
	SubmitBatch(ctx context.Context, entities []ImportEntity) (*JobResult, error)
}

package connector

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dqbridge/dq-connector/pkg/jobs"
)

// Failure is a record that could not be synced.
type Failure struct {
	Index int    `json:"index"`
	Key   string `json:"key,omitempty"`
	Err   error  `json:"-"`
}

// Error renders the failure with the record position.
func (f Failure) Error() string {
	if f.Key != "" {
		return fmt.Sprintf("record %d (%s): %v", f.Index, f.Key, f.Err)
	}
	return fmt.Sprintf("record %d: %v", f.Index, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// RunSummary accounts for every record of a run.
type RunSummary struct {
	RunID     string        `json:"runId,omitempty"`
	Kind      string        `json:"kind"`
	Target    string        `json:"target"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Warnings  int           `json:"warnings"`
	Failures  []Failure     `json:"failures,omitempty"`
	Outcomes  []Outcome     `json:"outcomes,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Err joins the record failures, or returns nil when there were none.
func (s *RunSummary) Err() error {
	var merr *multierror.Error
	for _, f := range s.Failures {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}

func (s *RunSummary) record(index int, out Outcome, err error) {
	if err != nil {
		s.Failed++
		s.Failures = append(s.Failures, Failure{Index: index, Key: out.Key, Err: err})
		return
	}
	s.Outcomes = append(s.Outcomes, out)
	s.Warnings += len(out.Warnings)
	if out.Skipped {
		s.Skipped++
		return
	}
	s.Succeeded++
}

// Counts converts the summary for the run history.
func (s *RunSummary) Counts() jobs.Counts {
	c := jobs.Counts{
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Warnings:  s.Warnings,
	}
	if n := len(s.Failures); n > 0 {
		c.LastError = s.Failures[n-1].Error()
	}
	return c
}

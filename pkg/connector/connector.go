package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/pool"

	"github.com/dqbridge/dq-connector/pkg/jobs"
	"github.com/dqbridge/dq-connector/pkg/record"
	"github.com/dqbridge/dq-connector/pkg/source"
)

// Options configures a Connector.
type Options struct {
	// Concurrency bounds the records synced at once. Default 1.
	Concurrency int
	// History, when set, records every run and provides the last
	// successful run timestamp.
	History *jobs.RunStore
	Logger  logr.Logger

	RuleQuery    string
	ProfileQuery string
	// LastRun is used when History has no successful run to start from.
	LastRun time.Time
	// RetentionDays prunes finished runs older than this. Zero keeps all.
	RetentionDays int
}

// Connector moves records from the source to a target.
type Connector struct {
	source source.Querier
	target Target
	opts   Options

	now func() time.Time
}

// New creates a Connector.
func New(src source.Querier, target Target, opts Options) *Connector {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Connector{source: src, target: target, opts: opts, now: time.Now}
}

// Prepare prepares the target and prunes old run history.
func (c *Connector) Prepare(ctx context.Context) error {
	if err := c.target.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare %s: %w", c.target.Name(), err)
	}
	if c.opts.History != nil && c.opts.RetentionDays > 0 {
		cutoff := c.now().AddDate(0, 0, -c.opts.RetentionDays)
		n, err := c.opts.History.DeleteOlderThan(cutoff)
		if err != nil {
			c.opts.Logger.Error(err, "failed to prune run history")
		} else if n > 0 {
			c.opts.Logger.V(1).Info("pruned run history", "deleted", n)
		}
	}
	return nil
}

// SyncRules syncs every record returned by the rule query.
func (c *Connector) SyncRules(ctx context.Context) (*RunSummary, error) {
	if c.opts.RuleQuery == "" {
		return nil, errors.New("no rule query configured")
	}
	return c.sync(ctx, jobs.KindRules, c.opts.RuleQuery, c.target.SyncRule)
}

// SyncProfiles syncs every record returned by the profile query. The
// target must accept profiles.
func (c *Connector) SyncProfiles(ctx context.Context) (*RunSummary, error) {
	pt, ok := c.target.(ProfileTarget)
	if !ok {
		return nil, fmt.Errorf("%s target does not accept profiles", c.target.Name())
	}
	if c.opts.ProfileQuery == "" {
		return nil, errors.New("no profile query configured")
	}
	return c.sync(ctx, jobs.KindProfiles, c.opts.ProfileQuery, pt.SyncProfile)
}

// Run prepares the target, then syncs rules and, when a profile query is
// set, profiles. Both kinds run even when the first one fails.
func (c *Connector) Run(ctx context.Context) ([]*RunSummary, error) {
	if err := c.Prepare(ctx); err != nil {
		return nil, err
	}

	var (
		summaries []*RunSummary
		merr      *multierror.Error
	)
	collect := func(s *RunSummary, err error) {
		if s != nil {
			summaries = append(summaries, s)
		}
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	collect(c.SyncRules(ctx))
	if _, ok := c.target.(ProfileTarget); ok && c.opts.ProfileQuery != "" {
		collect(c.SyncProfiles(ctx))
	}
	return summaries, merr.ErrorOrNil()
}

// lastRun returns the start of the last successful run of kind, falling
// back to the configured timestamp.
func (c *Connector) lastRun(kind string) time.Time {
	if c.opts.History == nil {
		return c.opts.LastRun
	}
	last, ok, err := c.opts.History.LastSuccessfulRun(kind, c.target.Name())
	if err != nil {
		c.opts.Logger.Error(err, "failed to read last run, using configured timestamp", "kind", kind)
		return c.opts.LastRun
	}
	if !ok {
		return c.opts.LastRun
	}
	return last
}

type syncFunc func(ctx context.Context, rec record.Record) (Outcome, error)

type indexed struct {
	index int
	out   Outcome
	err   error
}

// sync runs one kind under the history run lock, so two connectors sharing
// a history database never sync the same kind and target at once.
func (c *Connector) sync(ctx context.Context, kind, query string, fn syncFunc) (*RunSummary, error) {
	if c.opts.History == nil {
		return c.syncLocked(ctx, kind, query, fn)
	}
	var (
		summary *RunSummary
		runErr  error
	)
	err := c.opts.History.WithLock(ctx, kind, c.target.Name(), func() error {
		summary, runErr = c.syncLocked(ctx, kind, query, fn)
		return nil
	})
	if err != nil {
		return summary, err
	}
	return summary, runErr
}

func (c *Connector) syncLocked(ctx context.Context, kind, query string, fn syncFunc) (*RunSummary, error) {
	start := c.now()
	log := c.opts.Logger.WithValues("kind", kind, "target", c.target.Name())
	summary := &RunSummary{Kind: kind, Target: c.target.Name()}

	var run *jobs.SyncRun
	if c.opts.History != nil {
		var err error
		if run, err = c.opts.History.Start(kind, c.target.Name()); err != nil {
			return nil, err
		}
		summary.RunID = run.ID
	}
	fail := func(err error) (*RunSummary, error) {
		if run != nil {
			if herr := c.opts.History.Fail(run.ID, err.Error()); herr != nil {
				log.Error(herr, "failed to record run failure", "runId", run.ID)
			}
		}
		return summary, err
	}

	sql := source.WithLastRun(query, c.lastRun(kind))
	recs, err := c.source.Query(ctx, sql)
	if err != nil {
		return fail(fmt.Errorf("query %s: %w", kind, err))
	}
	recs = record.NormalizeAll(recs)
	summary.Total = len(recs)
	log.Info("syncing records", "records", len(recs), "concurrency", c.opts.Concurrency)

	p := pool.NewWithResults[indexed]().WithMaxGoroutines(c.opts.Concurrency)
	for i, rec := range recs {
		p.Go(func() indexed {
			if err := ctx.Err(); err != nil {
				return indexed{index: i, err: err}
			}
			out, err := fn(ctx, rec)
			return indexed{index: i, out: out, err: err}
		})
	}
	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	for _, r := range results {
		summary.record(r.index, r.out, r.err)
		switch {
		case r.err != nil:
			log.Error(r.err, "record failed", "index", r.index, "key", r.out.Key)
		case r.out.Skipped:
			log.V(1).Info("record skipped", "index", r.index, "key", r.out.Key, "reason", r.out.Reason)
		case len(r.out.Warnings) > 0:
			log.Info("record synced with warnings", "index", r.index, "key", r.out.Key, "warnings", r.out.Warnings)
		default:
			log.V(2).Info("record synced", "index", r.index, "key", r.out.Key)
		}
	}
	summary.Duration = c.now().Sub(start)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if run != nil {
		if err := c.opts.History.Complete(run.ID, summary.Counts()); err != nil {
			log.Error(err, "failed to record run", "runId", run.ID)
		}
	}
	log.Info("sync finished", "succeeded", summary.Succeeded, "failed", summary.Failed,
		"skipped", summary.Skipped, "warnings", summary.Warnings, "duration", summary.Duration)
	return summary, summary.Err()
}

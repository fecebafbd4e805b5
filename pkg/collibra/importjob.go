package collibra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dqbridge/dq-connector/pkg/catalog"
)

// ImportBatchSize is the batch size sent with every import job.
const ImportBatchSize = 4000

const importFileName = "file.txt"

var inProgressStates = map[string]bool{
	"WAITING":      true,
	"QUEUED":       true,
	"RUNNING":      true,
	"INITIALIZING": true,
	"IN_PROGRESS":  true,
}

var errJobPending = errors.New("import job still in progress")

// ImportDriver submits import jobs and polls them to a terminal state.
type ImportDriver struct {
	s            *Session
	pollInterval time.Duration
	maxPolls     int
}

// NewImportDriver creates a driver polling every pollInterval, at most
// maxPolls times. Zero values select 1s and 600 polls.
func NewImportDriver(s *Session, pollInterval time.Duration, maxPolls int) *ImportDriver {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 600
	}
	return &ImportDriver{s: s, pollInterval: pollInterval, maxPolls: maxPolls}
}

type jobStatus struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// ImportBatch submits entities as one JSON import job and waits for it.
//
// COMPLETED yields the job result. ERROR yields a *catalog.JobFailure
// with the job payload and the submitted descriptors. In-progress states
// keep polling; any other state, or running out of polls, yields a result
// with Warning set. No request is made after the job resolves.
func (d *ImportDriver) ImportBatch(ctx context.Context, entities []catalog.ImportEntity) (*catalog.JobResult, error) {
	payload, err := json.Marshal(entities)
	if err != nil {
		return nil, fmt.Errorf("marshal import payload: %w", err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", importFileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("batchSize", strconv.Itoa(ImportBatchSize)); err != nil {
		return nil, err
	}
	if err := mw.WriteField("fileName", importFileName); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var started jobStatus
	d.s.logger.V(1).Info("starting import", "entities", len(entities))
	if err := d.s.do(ctx, catalog.OpCreate, http.MethodPost, "/import/json-job", nil,
		mw.FormDataContentType(), body, entities, &started); err != nil {
		return nil, err
	}
	if started.ID == "" {
		return nil, errors.New("import job response carried no id")
	}
	d.s.recordJob(started.ID, payload)
	d.s.logger.Info("import started", "jobId", started.ID)

	return d.poll(ctx, started.ID, entities)
}

func (d *ImportDriver) poll(ctx context.Context, jobID string, entities []catalog.ImportEntity) (*catalog.JobResult, error) {
	var (
		result *catalog.JobResult
		last   jobStatus
		polls  int
	)

	op := func() error {
		polls++
		var raw json.RawMessage
		if err := d.s.doJSON(ctx, catalog.OpLookup, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil, &raw); err != nil {
			return backoff.Permanent(err)
		}
		if err := json.Unmarshal(raw, &last); err != nil {
			return backoff.Permanent(fmt.Errorf("decode job %s: %w", jobID, err))
		}

		switch {
		case last.State == catalog.JobCompleted:
			result = &catalog.JobResult{ID: jobID, State: last.State, Message: last.Message, Payload: raw}
			d.s.logger.V(1).Info("import completed", "jobId", jobID)
			return nil
		case last.State == catalog.JobError:
			submitted, _ := d.s.JobPayload(jobID)
			d.s.logger.Error(nil, "import failed", "jobId", jobID, "payload", string(raw), "submitted", string(submitted))
			return backoff.Permanent(&catalog.JobFailure{JobID: jobID, Payload: raw, Submitted: entities})
		case inProgressStates[last.State]:
			return errJobPending
		default:
			result = &catalog.JobResult{
				ID: jobID, State: last.State, Payload: raw, Warning: true,
				Message: fmt.Sprintf("import job ended in unexpected state %q", last.State),
			}
			d.s.logger.Info("import completed with warnings", "jobId", jobID, "state", last.State)
			return nil
		}
	}

	// The first poll also waits one interval.
	first := time.NewTimer(d.pollInterval)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-first.C:
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.pollInterval), uint64(d.maxPolls-1)),
		ctx,
	)
	err := backoff.Retry(op, b)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errJobPending):
		d.s.logger.Info("import still running, giving up", "jobId", jobID, "polls", polls, "state", last.State)
		return &catalog.JobResult{
			ID: jobID, State: last.State, Warning: true,
			Message: fmt.Sprintf("import job still %s after %d polls", last.State, polls),
		}, nil
	default:
		return nil, err
	}
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

// Batch run lifecycle states.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunResult carries the counters a finished batch reports.
type RunResult struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	Err     error
}

// StartBatchRunWithClient records the start of a batch flow and returns the
// generated run identifier.
func StartBatchRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, uid, flow string) (string, error) {
	runID := uuid.New().String()

	queryStr := fmt.Sprintf(`
		INSERT INTO %s (run_id, uid, flow, status, started_ts)
		VALUES (@run_id, @uid, @flow, @status, @started_ts)`, ds.table(batchRunsTable))

	q := client.Query(queryStr)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "uid", Value: uid},
		{Name: "flow", Value: flow},
		{Name: "status", Value: RunStatusRunning},
		{Name: "started_ts", Value: time.Now().UTC()},
	}

	if _, err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartBatchRunWithClient: %w", err)
	}
	return runID, nil
}

// FinishBatchRunWithClient closes a batch run with its final status and
// counters.
func FinishBatchRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, result RunResult) error {
	status := RunStatusSucceeded
	errMsg := bigquery.NullString{}
	if result.Err != nil {
		status = RunStatusFailed
		errMsg = nullString(result.Err.Error())
	}

	queryStr := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    created_count = @created_count,
		    updated_count = @updated_count,
		    skipped_count = @skipped_count,
		    failed_count = @failed_count,
		    error = @error,
		    finished_ts = @finished_ts
		WHERE run_id = @run_id`, ds.table(batchRunsTable))

	q := client.Query(queryStr)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "created_count", Value: result.Created},
		{Name: "updated_count", Value: result.Updated},
		{Name: "skipped_count", Value: result.Skipped},
		{Name: "failed_count", Value: result.Failed},
		{Name: "error", Value: errMsg},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "run_id", Value: runID},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("FinishBatchRunWithClient: %w", err)
	}
	return nil
}

// BatchRunRepository wraps the batch-run table operations around one shared
// client.
type BatchRunRepository struct {
	client *bigquery.Client
	ds     Dataset
}

func (r *BatchRunRepository) Start(ctx context.Context, uid, flow string) (string, error) {
	return StartBatchRunWithClient(ctx, r.client, r.ds, uid, flow)
}

func (r *BatchRunRepository) Finish(ctx context.Context, runID string, result RunResult) error {
	return FinishBatchRunWithClient(ctx, r.client, r.ds, runID, result)
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// EngineVersion is recorded with every run.
const EngineVersion = "v1"

const maxErrorMessageLen = 2000

// StartRun delegates to StartRunWithClient with the shared client.
func (r *Repository) StartRun(ctx context.Context, sourceURI, outputURI, rateMode string) (string, error) {
	return StartRunWithClient(ctx, r.client, r.datasetID, sourceURI, outputURI, rateMode)
}

// MarkRunFailed delegates to MarkRunFailedWithClient with the shared client.
func (r *Repository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkRunFailedWithClient(ctx, r.client, r.datasetID, runID, runErr)
}

// MarkRunSucceeded delegates to MarkRunSucceededWithClient with the shared client.
func (r *Repository) MarkRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	return MarkRunSucceededWithClient(ctx, r.client, r.datasetID, runID, stats)
}

// StartRunWithClient inserts a new row into tax_runs with status=RUNNING
// and returns the generated run_id.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, datasetID, sourceURI, outputURI, rateMode string) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			source_uri,
			output_uri,
			started_ts,
			rate_mode,
			engine_version,
			status
		)
		VALUES (
			@run_id,
			@source_uri,
			@output_uri,
			@started_ts,
			@rate_mode,
			@engine_version,
			@status
		)
	`, qualified(client.Project(), datasetID, runsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "source_uri", Value: sourceURI},
		{Name: "output_uri", Value: outputURI},
		{Name: "started_ts", Value: time.Now()},
		{Name: "rate_mode", Value: rateMode},
		{Name: "engine_version", Value: EngineVersion},
		{Name: "status", Value: RunStatusRunning},
	}

	if err := runQuery(ctx, q); err != nil {
		return "", fmt.Errorf("StartRun: %w", err)
	}
	return runID, nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged rather than returned so the original error stays the
// one reported to the caller.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, qualified(client.Project(), datasetID, runsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: truncateError(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run")
	}
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts and the run
// counts, and clears error_message.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, stats RunStats) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    transactions = @transactions,
		    finding_count = @finding_count,
		    error_message = ""
		WHERE run_id = @run_id
	`, qualified(client.Project(), datasetID, runsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "transactions", Value: int64(stats.Transactions)},
		{Name: "finding_count", Value: int64(stats.Findings)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

// ListRuns delegates to ListRunsWithClient with the shared client.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	return ListRunsWithClient(ctx, r.client, r.datasetID, limit)
}

// ListRunsWithClient returns the most recent runs, newest first.
func ListRunsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, limit int) ([]*RunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			source_uri,
			output_uri,
			started_ts,
			finished_ts,
			rate_mode,
			engine_version,
			status,
			error_message,
			transactions,
			finding_count
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, qualified(client.Project(), datasetID, runsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: int64(limit)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRunsWithClient: reading query: %w", err)
	}

	var runs []*RunRow
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRunsWithClient: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

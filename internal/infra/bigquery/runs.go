package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses.
const (
	RunStatusRunning = "RUNNING"
	RunStatusFailed  = "FAILED"
	RunStatusSuccess = "SUCCESS"
)

type RunRow struct {
	RunID     string `bigquery:"run_id"`     // REQUIRED
	SourceURI string `bigquery:"source_uri"` // REQUIRED
	OutputURI string `bigquery:"output_uri"` // NULLABLE

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	RateMode      string `bigquery:"rate_mode"`      // REQUIRED
	EngineVersion string `bigquery:"engine_version"` // NULLABLE

	Status       string `bigquery:"status"`        // REQUIRED
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	Transactions bigquery.NullInt64 `bigquery:"transactions"`  // NULLABLE
	Findings     bigquery.NullInt64 `bigquery:"finding_count"` // NULLABLE
}

// RunStats are the counts recorded when a run succeeds.
type RunStats struct {
	Transactions int
	Findings     int
}

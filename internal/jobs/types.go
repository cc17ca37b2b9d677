// Package jobs defines queued tax runs submitted through the HTTP server.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueClosed is returned when publishing to or starting a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrJobNotFound is returned by JobStore lookups for unknown ids.
	ErrJobNotFound = errors.New("job not found")
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// TaxRunJob is one queued execution of the tax pipeline.
type TaxRunJob struct {
	JobID string `json:"job_id"`

	// SourceURI is a folder, gs:// or bq:// location. Empty means the
	// server default.
	SourceURI string `json:"source_uri,omitempty"`

	// Outputs lists the output locations. Empty means the server default.
	Outputs []string `json:"outputs,omitempty"`

	// RateMode is "components" or "combined". Empty means the server default.
	RateMode string `json:"rate_mode,omitempty"`

	// RunID is the ledger id assigned by the pipeline once the run starts.
	RunID string `json:"run_id,omitempty"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Transactions and Findings are filled in when the run completes.
	Transactions int `json:"transactions"`
	Findings     int `json:"findings"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues tax runs.
type Publisher interface {
	PublishTaxRun(ctx context.Context, job *TaxRunJob) error
	Close() error
}

// Consumer delivers queued jobs to a handler.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler executes one job. It may set RunID, Transactions and Findings
// on the job. A returned error makes the job eligible for retry.
type JobHandler func(ctx context.Context, job *TaxRunJob) error

// JobStore keeps job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *TaxRunJob) error
	GetJob(ctx context.Context, jobID string) (*TaxRunJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*TaxRunJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/jobs"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/google/uuid"
)

// QueueOptions configures a Queue. Zero values select the defaults.
type QueueOptions struct {
	BufferSize int
	Workers    int
	MaxRetries int
	// Backoff is multiplied by the retry count before a failed job is
	// enqueued again.
	Backoff time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// Queue is a channel-backed Publisher and Consumer for a single server
// instance.
type Queue struct {
	opts      QueueOptions
	jobChan   chan *jobs.TaxRunJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
}

// NewQueue creates a queue that records job state in store (which may be nil).
func NewQueue(opts QueueOptions, store jobs.JobStore) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		opts:      opts,
		jobChan:   make(chan *jobs.TaxRunJob, opts.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
	}
}

// PublishTaxRun assigns an id and defaults to job, saves it and enqueues a
// copy. The caller's job is not touched after PublishTaxRun returns.
func (q *Queue) PublishTaxRun(ctx context.Context, job *jobs.TaxRunJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.opts.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("Queue.PublishTaxRun: saving job: %w", err)
		}
	}

	queued := cloneJob(job)
	select {
	case q.jobChan <- queued:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, job *jobs.TaxRunJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.CompletedAt = nil
	q.save(ctx, job)

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Str("run_id", job.RunID).Msg("Job completed")
	case job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Job failed, retrying")

		retry := cloneJob(job)
		time.AfterFunc(time.Duration(job.RetryCount)*q.opts.Backoff, func() {
			retry.Status = jobs.JobStatusPending
			retry.StartedAt = nil
			retry.CompletedAt = nil
			retry.RunID = ""
			if err := q.PublishTaxRun(ctx, retry); err != nil {
				log.Error().Err(err).Msg("Failed to re-enqueue job")
				q.setStatus(ctx, retry.JobID, jobs.JobStatusFailed, "re-enqueue: "+err.Error())
			}
		})
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Msg("Job failed")
	}

	q.save(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.TaxRunJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

func (q *Queue) setStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) {
	if q.store == nil {
		return
	}
	if err := q.store.UpdateJobStatus(ctx, jobID, status, errorMsg); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to update job status")
	}
}

// Stop closes the queue and waits for in-flight jobs or ctx, whichever
// comes first.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)

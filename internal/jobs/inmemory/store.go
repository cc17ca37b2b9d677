package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/opa-taxengine/internal/jobs"
)

// Store is an in-memory JobStore. Jobs are lost on restart; the BigQuery
// tax_runs table is the durable record.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.TaxRunJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.TaxRunJob)}
}

func cloneJob(job *jobs.TaxRunJob) *jobs.TaxRunJob {
	c := *job
	c.Outputs = append([]string(nil), job.Outputs...)
	return &c
}

// SaveJob saves or replaces a job.
func (s *Store) SaveJob(ctx context.Context, job *jobs.TaxRunJob) error {
	if job.JobID == "" {
		return fmt.Errorf("Store.SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the job with the given id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.TaxRunJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("Store.GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return cloneJob(job), nil
}

// ListJobs returns jobs newest first, filtered and paginated.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.TaxRunJob, error) {
	s.mu.RLock()
	result := make([]*jobs.TaxRunJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, cloneJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.TaxRunJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateJobStatus sets the status and, when non-empty, the error message.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("Store.UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

var _ jobs.JobStore = (*Store)(nil)

package memory

import (
	"context"
	"sort"
	"sync"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// JobStore is an in-memory implementation of storage.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ReportJob // keyed by job_id
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		data: make(map[string]*domain.ReportJob),
	}
}

// Insert adds a new job. Returns ErrDuplicateKey if exists.
func (s *JobStore) Insert(_ context.Context, job *domain.ReportJob) error {
	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[job.JobID]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *job
	s.data[job.JobID] = &copy
	return nil
}

// Update replaces a job. Returns ErrNotFound if it does not exist.
func (s *JobStore) Update(_ context.Context, job *domain.ReportJob) error {
	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[job.JobID]; !exists {
		return storage.ErrNotFound
	}
	copy := *job
	s.data[job.JobID] = &copy
	return nil
}

// GetByID retrieves a job by its ID.
func (s *JobStore) GetByID(_ context.Context, jobID string) (*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.data[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *job
	return &copy, nil
}

// ListByAddress retrieves jobs of an address, newest first.
func (s *JobStore) ListByAddress(_ context.Context, address string) ([]*domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReportJob
	for _, job := range s.data {
		if job.Address == address {
			copy := *job
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].JobID < result[j].JobID
	})
	return result, nil
}

var _ storage.JobStore = (*JobStore)(nil)

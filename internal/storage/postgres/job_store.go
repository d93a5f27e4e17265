package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

// JobStore implements storage.JobStore using PostgreSQL.
type JobStore struct {
	pool *Pool
}

// NewJobStore creates a new JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)

const jobColumns = `
	job_id, address, network, period_start, period_end,
	status, stage, events, errors, error, created_at, updated_at`

// Insert adds a new job. Returns ErrDuplicateKey if job_id exists.
func (s *JobStore) Insert(ctx context.Context, job *domain.ReportJob) (err error) {
	defer func(start time.Time) { observe("job_insert", start, err) }(time.Now())

	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO report_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.pool.Exec(ctx, query,
		job.JobID, job.Address, job.Network, job.PeriodStart, job.PeriodEnd,
		string(job.Status), job.Stage, job.Events, job.Errors, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert report job: %w", err)
	}
	return nil
}

// Update replaces a job's mutable fields. Returns ErrNotFound if job_id does not exist.
func (s *JobStore) Update(ctx context.Context, job *domain.ReportJob) (err error) {
	defer func(start time.Time) { observe("job_update", start, err) }(time.Now())

	if job == nil || job.JobID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE report_jobs
		SET status = $2, stage = $3, events = $4, errors = $5, error = $6, updated_at = $7
		WHERE job_id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		job.JobID, string(job.Status), job.Stage, job.Events, job.Errors, job.Error, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a job. Returns ErrNotFound if not exists.
func (s *JobStore) GetByID(ctx context.Context, jobID string) (job *domain.ReportJob, err error) {
	defer func(start time.Time) { observe("job_get", start, err) }(time.Now())

	query := `SELECT ` + jobColumns + ` FROM report_jobs WHERE job_id = $1`
	job, err = scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get report job by id: %w", err)
	}
	return job, nil
}

// ListByAddress retrieves jobs of an address, newest first.
func (s *JobStore) ListByAddress(ctx context.Context, address string) (jobs []*domain.ReportJob, err error) {
	defer func(start time.Time) { observe("job_list", start, err) }(time.Now())

	query := `SELECT ` + jobColumns + `
		FROM report_jobs
		WHERE address = $1
		ORDER BY created_at DESC, job_id ASC
	`
	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report job rows: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.ReportJob, error) {
	var j domain.ReportJob
	var status string
	err := row.Scan(
		&j.JobID, &j.Address, &j.Network, &j.PeriodStart, &j.PeriodEnd,
		&status, &j.Stage, &j.Events, &j.Errors, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = domain.JobStatus(status)
	return &j, nil
}

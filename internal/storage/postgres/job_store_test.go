package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/storage"
)

func TestJobStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewJobStore(pool)

	job := &domain.ReportJob{
		JobID:       "job-1",
		Address:     testAddr,
		Network:     domain.NetworkEthereum,
		PeriodStart: 1000,
		PeriodEnd:   2000,
		Status:      domain.JobStatusPending,
		CreatedAt:   10,
		UpdatedAt:   10,
	}
	require.NoError(t, store.Insert(ctx, job))
	assert.ErrorIs(t, store.Insert(ctx, job), storage.ErrDuplicateKey)

	job.Status = domain.JobStatusCompleted
	job.Stage = "summarize"
	job.Events = 12
	job.UpdatedAt = 20
	require.NoError(t, store.Update(ctx, job))

	got, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 12, got.Events)
	assert.Equal(t, int64(20), got.UpdatedAt)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, &domain.ReportJob{JobID: "missing"}), storage.ErrNotFound)

	newer := *job
	newer.JobID = "job-2"
	newer.CreatedAt = 30
	require.NoError(t, store.Insert(ctx, &newer))

	jobs, err := store.ListByAddress(ctx, testAddr)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].JobID)
}

package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

func TestJobStartValidatesAndClamps(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	job, err := f.jobSvc.Start(ctx, "k-old", "k-new", 999999, -5, "op")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)
	assert.Equal(t, 5000, job.BatchSize)
	assert.Equal(t, 0, job.ThrottleMs)
	assert.Equal(t, "op", job.RequestedBy)
	assert.NotNil(t, job.StartedAt)

	job, err = f.jobSvc.Start(ctx, "k-old", "k-new", 0, 99999, "op")
	require.NoError(t, err)
	assert.Equal(t, 1, job.BatchSize)
	assert.Equal(t, 10000, job.ThrottleMs)
}

func TestJobStartUnknownKid(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.jobSvc.Start(ctx, "ghost", "k-new", 10, 0, "op")
	assert.ErrorIs(t, err, apperrors.ErrUnknownKid)

	_, err = f.jobSvc.Start(ctx, "k-old", "ghost", 10, 0, "op")
	assert.ErrorIs(t, err, apperrors.ErrUnknownKid)
}

func TestJobGetAndCancel(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	job, err := f.jobSvc.Start(ctx, "k-old", "k-new", 10, 0, "op")
	require.NoError(t, err)

	got, err := f.jobSvc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	require.NoError(t, f.jobSvc.Cancel(ctx, job.ID))

	got, err = f.jobSvc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCanceled, got.Status)
	require.NotNil(t, got.FinishedAt)

	// Cancel on a terminal job reports it as already finished.
	err = f.jobSvc.Cancel(ctx, job.ID)
	assert.ErrorIs(t, err, apperrors.ErrJobTerminal)
}

func TestJobGetUnknown(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.jobSvc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrJobNotFound)
}

package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/models"
)

func TestEnqueue_PublicJob(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, enum.PlanGold)
	job := &models.PublicJob{Company: "Sunny Farm", JobTitle: "Picker", Email: "hr@sunny.com", IsActive: true}
	require.NoError(t, f.repos.JobRepository.CreatePublicJob(f.ctx, job))

	item, err := f.svc.Enqueue(f.ctx, user.ID, models.PublicJobRef{JobID: job.ID})
	require.NoError(t, err)
	assert.Equal(t, enum.QueueStatusPending, item.Status)
	require.NotNil(t, item.JobID)
	assert.Equal(t, job.ID, *item.JobID)
	assert.Nil(t, item.ManualJobID)
	assert.NotEmpty(t, item.TrackingID)

	_, err = f.svc.Enqueue(f.ctx, user.ID, models.PublicJobRef{JobID: job.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, sqerrors.ErrJobAlreadyQueued)
}

func TestEnqueue_UnknownJob(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, enum.PlanGold)

	_, err := f.svc.Enqueue(f.ctx, user.ID, models.PublicJobRef{JobID: "job_missing"})
	assert.ErrorIs(t, err, sqerrors.ErrJobNotFound)

	_, err = f.svc.Enqueue(f.ctx, user.ID, nil)
	assert.ErrorIs(t, err, sqerrors.ErrInvalidJobReference)
}

func TestEnqueue_ManualJobMustBelongToUser(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t, enum.PlanGold)
	other := f.createUser(t, enum.PlanGold)
	job := &models.ManualJob{UserID: owner.ID, Company: "Private Ranch", Email: "boss@ranch.com", EtaNumber: "H-300-12345"}
	require.NoError(t, f.repos.JobRepository.CreateManualJob(f.ctx, job))

	_, err := f.svc.Enqueue(f.ctx, other.ID, models.ManualJobRef{ManualJobID: job.ID})
	assert.ErrorIs(t, err, sqerrors.ErrJobNotFound)

	item, err := f.svc.Enqueue(f.ctx, owner.ID, models.ManualJobRef{ManualJobID: job.ID})
	require.NoError(t, err)
	require.NotNil(t, item.ManualJobID)
	assert.Nil(t, item.JobID)
}

func TestEnqueue_FreeQueueLimit(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, enum.PlanFree)
	f.enqueue(t, user.ID, 10, "farm.com")

	job := &models.PublicJob{Company: "One More Farm", Email: "hr@onemore.com", IsActive: true}
	require.NoError(t, f.repos.JobRepository.CreatePublicJob(f.ctx, job))

	_, err := f.svc.Enqueue(f.ctx, user.ID, models.PublicJobRef{JobID: job.ID})
	assert.ErrorIs(t, err, sqerrors.ErrQueueLimitReached)
}

func TestHistory_OtherUsersItemIsNotFound(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t, enum.PlanGold)
	other := f.createUser(t, enum.PlanGold)
	items := f.enqueue(t, owner.ID, 1, "farm.com")

	_, err := f.svc.History(f.ctx, other.ID, items[0].ID)
	assert.ErrorIs(t, err, sqerrors.ErrQueueItemNotFound)

	_, err = f.svc.Retry(f.ctx, other.ID, items[0].ID)
	assert.ErrorIs(t, err, sqerrors.ErrQueueItemNotFound)
}

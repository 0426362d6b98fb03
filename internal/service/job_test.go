package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// mockJobRepo is a mock implementation of core.JobRepository for testing.
type mockJobRepo struct {
	createFunc      func(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	getByIDFunc     func(ctx context.Context, id string) (*model.Job, error)
	reserveNextFunc func(ctx context.Context, leaseSeconds int) (*model.Job, error)
	heartbeatFunc   func(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	completeFunc    func(ctx context.Context, params core.CompleteJobParams) (bool, error)
	failFunc        func(ctx context.Context, params core.FailJobParams) (bool, error)
	statsFunc       func(ctx context.Context) (*model.JobStats, error)
	hasActiveFunc   func(ctx context.Context, webCode string) (bool, error)
}

func (m *mockJobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockJobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if m.reserveNextFunc != nil {
		return m.reserveNextFunc(ctx, leaseSeconds)
	}
	return nil, model.ErrNoJobsAvailable
}

func (m *mockJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockJobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if m.heartbeatFunc != nil {
		return m.heartbeatFunc(ctx, jobID, leaseSeconds)
	}
	return true, nil
}

func (m *mockJobRepo) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, params)
	}
	return false, errors.New("not implemented")
}

func (m *mockJobRepo) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	if m.failFunc != nil {
		return m.failFunc(ctx, params)
	}
	return false, errors.New("not implemented")
}

func (m *mockJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockJobRepo) HasActiveJobForWebCode(ctx context.Context, webCode string) (bool, error) {
	if m.hasActiveFunc != nil {
		return m.hasActiveFunc(ctx, webCode)
	}
	return false, nil
}

func newTestJobService(t *testing.T, repo core.JobRepository) *JobService {
	t.Helper()
	svc, err := NewJobService(JobServiceOptions{Repo: repo})
	require.NoError(t, err)
	return svc
}

func TestJobServiceCreateValidates(t *testing.T) {
	svc := newTestJobService(t, &mockJobRepo{})

	_, err := svc.Create(context.Background(), &model.CreateJobRequest{WebCode: "  "})
	require.Error(t, err)
}

func TestJobServiceCreateDelegates(t *testing.T) {
	repo := &mockJobRepo{
		createFunc: func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			return &model.Job{ID: "j1", WebCode: req.WebCode, Status: model.JobStatusPending}, nil
		},
	}
	svc := newTestJobService(t, repo)

	job, err := svc.Create(context.Background(), &model.CreateJobRequest{WebCode: "17924062"})
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestJobServiceCompleteReportsSkipped(t *testing.T) {
	repo := &mockJobRepo{
		completeFunc: func(_ context.Context, _ core.CompleteJobParams) (bool, error) {
			return false, nil
		},
	}
	svc := newTestJobService(t, repo)

	ok, err := svc.Complete(context.Background(), core.CompleteJobParams{JobID: "j1"})
	require.NoError(t, err)
	assert.False(t, ok, "completing a job that is not running is a no-op")
}

func TestJobServiceFailWrapsError(t *testing.T) {
	repo := &mockJobRepo{
		failFunc: func(_ context.Context, _ core.FailJobParams) (bool, error) {
			return false, errors.New("db down")
		},
	}
	svc := newTestJobService(t, repo)

	_, err := svc.Fail(context.Background(), core.FailJobParams{JobID: "j1", ErrMsg: "boom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail job j1")
}

func TestJobServiceSubscribeWithoutNotifier(t *testing.T) {
	svc := newTestJobService(t, &mockJobRepo{})

	unsub, ch := svc.Subscribe()
	assert.Nil(t, ch, "no notifier configured means no wake-up channel")
	unsub() // must be safe to call
}

package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/domain/model"
	"github.com/pricetrack/pricetrack/internal/testutil"
)

// TestJobRepo_Integration_CreateAndReserve tests the full flow of creating and reserving jobs.
func TestJobRepo_Integration_CreateAndReserve(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		base := time.Now().UTC().Add(-time.Hour)
		requests := []*model.CreateJobRequest{
			{WebCode: "30000003", ScheduledAt: timePtr(base.Add(2 * time.Minute))},
			{WebCode: "10000001", ScheduledAt: timePtr(base)},
			{WebCode: "20000002", ScheduledAt: timePtr(base.Add(time.Minute))},
		}

		for _, req := range requests {
			created, err := repo.Create(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusPending, created.Status)
			assert.Zero(t, created.Attempts)
		}

		// Jobs are reserved oldest scheduled first.
		for _, wantWebCode := range []string{"10000001", "20000002", "30000003"} {
			reserved, err := repo.ReserveNext(context.Background(), 30)
			require.NoError(t, err)
			assert.Equal(t, wantWebCode, reserved.WebCode)
			assert.Equal(t, model.JobStatusRunning, reserved.Status)
			require.NotNil(t, reserved.StartedAt)
			require.NotNil(t, reserved.LeaseExpiresAt)
		}

		// No more jobs available
		_, err := repo.ReserveNext(context.Background(), 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

// TestJobRepo_Integration_JobLifecycle exercises create → reserve → heartbeat →
// complete and verifies completed jobs never change state again.
func TestJobRepo_Integration_JobLifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		created, err := repo.Create(context.Background(), &model.CreateJobRequest{WebCode: "17924062"})
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)
		require.Equal(t, created.ID, reserved.ID)

		extended, err := repo.Heartbeat(context.Background(), reserved.ID, 60)
		require.NoError(t, err)
		assert.True(t, extended, "heartbeat on a running job should extend the lease")

		result, err := json.Marshal(&model.JobResultPayload{
			Outcome:    model.OutcomeInserted,
			WebCode:    "17924062",
			PriceCents: 259999,
			Attempts:   1,
		})
		require.NoError(t, err)

		completed, err := repo.Complete(context.Background(), core.CompleteJobParams{
			JobID:    reserved.ID,
			Result:   result,
			Attempts: 1,
		})
		require.NoError(t, err)
		assert.True(t, completed)

		got, err := repo.GetByID(context.Background(), reserved.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.JSONEq(t, string(result), string(got.Result))
		require.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.LeaseExpiresAt)

		// Terminal states are final: neither a duplicate completion nor a late
		// failure may touch the job again.
		completedAgain, err := repo.Complete(context.Background(), core.CompleteJobParams{
			JobID:    reserved.ID,
			Result:   result,
			Attempts: 2,
		})
		require.NoError(t, err)
		assert.False(t, completedAgain)

		failed, err := repo.Fail(context.Background(), core.FailJobParams{
			JobID:    reserved.ID,
			ErrMsg:   "late failure",
			Attempts: 2,
		})
		require.NoError(t, err)
		assert.False(t, failed)

		heartbeatOK, err := repo.Heartbeat(context.Background(), reserved.ID, 30)
		require.NoError(t, err)
		assert.False(t, heartbeatOK, "heartbeat must not revive a terminal job")
	})
}

func TestJobRepo_Integration_FailIsTerminal(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		_, err := repo.Create(context.Background(), &model.CreateJobRequest{WebCode: "17924062"})
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)

		failed, err := repo.Fail(context.Background(), core.FailJobParams{
			JobID:    reserved.ID,
			ErrMsg:   "all 3 attempts failed: connection reset",
			Attempts: 3,
		})
		require.NoError(t, err)
		assert.True(t, failed)

		got, err := repo.GetByID(context.Background(), reserved.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "connection reset")

		completedLate, err := repo.Complete(context.Background(), core.CompleteJobParams{
			JobID:    reserved.ID,
			Attempts: 3,
		})
		require.NoError(t, err)
		assert.False(t, completedLate, "failed jobs must stay failed")
	})
}

// TestJobRepo_Integration_RequeueExpired verifies that an expired lease returns
// the job to the pending state so another worker can claim it.
func TestJobRepo_Integration_RequeueExpired(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(time.Now().UTC())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})

		_, err := repo.Create(context.Background(), &model.CreateJobRequest{WebCode: "17924062"})
		require.NoError(t, err)

		first, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)

		// Lease still valid: nothing to claim.
		_, err = repo.ReserveNext(context.Background(), 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		clock.AddTime(2 * time.Minute)

		second, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, model.JobStatusRunning, second.Status)
	})
}

func TestJobRepo_Integration_HasActiveJobForWebCode(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		active, err := repo.HasActiveJobForWebCode(context.Background(), "17924062")
		require.NoError(t, err)
		assert.False(t, active)

		_, err = repo.Create(context.Background(), &model.CreateJobRequest{WebCode: "17924062"})
		require.NoError(t, err)

		active, err = repo.HasActiveJobForWebCode(context.Background(), "17924062")
		require.NoError(t, err)
		assert.True(t, active, "pending jobs count as active")

		reserved, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)

		active, err = repo.HasActiveJobForWebCode(context.Background(), "17924062")
		require.NoError(t, err)
		assert.True(t, active, "running jobs count as active")

		_, err = repo.Complete(context.Background(), core.CompleteJobParams{JobID: reserved.ID, Attempts: 1})
		require.NoError(t, err)

		active, err = repo.HasActiveJobForWebCode(context.Background(), "17924062")
		require.NoError(t, err)
		assert.False(t, active, "terminal jobs are not active")
	})
}

func TestJobRepo_Integration_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		for _, webCode := range []string{"10000001", "20000002", "30000003"} {
			_, err := repo.Create(context.Background(), &model.CreateJobRequest{WebCode: webCode})
			require.NoError(t, err)
		}

		reserved, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)
		_, err = repo.Fail(context.Background(), core.FailJobParams{JobID: reserved.ID, ErrMsg: "boom", Attempts: 3})
		require.NoError(t, err)

		running, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)
		_ = running

		stats, err := repo.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.Running)
		assert.Equal(t, 0, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
	})
}

func TestJobRepo_Integration_GetByIDNotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobRepo_Integration_ReaperCleansUp(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(time.Now().UTC())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})

		// One stale pending job and one fresh one.
		_, err := repo.Create(context.Background(), &model.CreateJobRequest{WebCode: "10000001"})
		require.NoError(t, err)

		clock.AddTime(48 * time.Hour)

		failedCount, err := repo.FailStalePendingJobs(context.Background(), 24*time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), failedCount)

		stats, err := repo.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed)

		// Old terminal jobs get deleted once past retention.
		clock.AddTime(31 * 24 * time.Hour)
		deleted, err := repo.DeleteOldJobs(context.Background(), core.DeleteOldJobsParams{
			Status:    model.JobStatusFailed,
			MaxAge:    30 * 24 * time.Hour,
			BatchSize: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		stats, err = repo.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Failed)
	})
}

func TestJobRepo_Integration_DeleteOldJobsRejectsNonTerminal(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		_, err := repo.DeleteOldJobs(context.Background(), core.DeleteOldJobsParams{
			Status:    model.JobStatusPending,
			MaxAge:    time.Hour,
			BatchSize: 10,
		})
		require.Error(t, err)
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}

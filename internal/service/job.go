package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/domain/job"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo     core.JobRepository // Required: job repository
	Notifier job.Notifier       // Optional: wake-up fan-out for workers
	Logger   *slog.Logger       // Optional: structured logger
}

// JobService fronts the job queue: submission, lookup, reservation for
// workers, and terminal transitions. It enforces the transition rules above
// the repository's status-guarded updates.
type JobService struct {
	repo     core.JobRepository
	notifier job.Notifier
	logger   *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:     opts.Repo,
		notifier: opts.Notifier,
		logger:   logger,
	}, nil
}

// Create validates and enqueues a new scrape job. The job starts pending and
// becomes visible to workers once its scheduled time has passed.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	j, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job created",
			"job_id", j.ID,
			"web_code", j.WebCode,
			"scheduled_at", j.ScheduledAt,
		)
	}
	return j, nil
}

// GetByID returns a job by its UUID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// ReserveNext claims the oldest due pending job for exclusive processing under
// a lease of leaseSeconds. Returns model.ErrNoJobsAvailable when the queue has
// nothing due.
func (s *JobService) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	return s.repo.ReserveNext(ctx, leaseSeconds)
}

// Heartbeat extends the lease of a running job. Returns false when the job is
// no longer running, which tells the worker its claim was lost.
func (s *JobService) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	return s.repo.Heartbeat(ctx, jobID, leaseSeconds)
}

// Complete moves a running job to the terminal completed state. A false
// return means the job was not running anymore and nothing changed.
func (s *JobService) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	ok, err := s.repo.Complete(ctx, params)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", params.JobID, err)
	}
	if !ok && s.logger != nil {
		s.logger.WarnContext(ctx, "complete skipped, job not running", "job_id", params.JobID)
	}
	return ok, nil
}

// Fail moves a running job to the terminal failed state, recording the final
// error and attempt count.
func (s *JobService) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	ok, err := s.repo.Fail(ctx, params)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", params.JobID, err)
	}
	if !ok && s.logger != nil {
		s.logger.WarnContext(ctx, "fail skipped, job not running", "job_id", params.JobID)
	}
	return ok, nil
}

// Stats returns queue counters by status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}

// HasActiveJobForWebCode reports whether a pending or running job already
// exists for the web code. The refresh scheduler uses it to avoid enqueueing
// duplicates.
func (s *JobService) HasActiveJobForWebCode(ctx context.Context, webCode string) (bool, error) {
	return s.repo.HasActiveJobForWebCode(ctx, webCode)
}

// Subscribe registers a worker with the job-added notifier and returns an
// unsubscribe func plus the wake-up channel. When no notifier is configured
// the channel is nil and workers fall back to polling.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		return func() {}, nil
	}
	return s.notifier.Subscribe()
}

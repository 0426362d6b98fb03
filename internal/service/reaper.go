package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// ReaperServiceOptions groups dependencies and tuning for ReaperService.
type ReaperServiceOptions struct {
	Repo            core.ReaperRepository // Required: cleanup repository
	Logger          *slog.Logger          // Optional: structured logger
	Interval        time.Duration         // Optional: sweep interval, default 5m
	PendingMaxAge   time.Duration         // Optional: pending jobs older than this fail, default 24h
	CompletedMaxAge time.Duration         // Optional: completed jobs older than this are deleted, default 7d
	FailedMaxAge    time.Duration         // Optional: failed jobs older than this are deleted, default 30d
	BatchSize       int                   // Optional: rows per statement, default 500
}

// ReaperService periodically fails pending jobs nobody ever picked up and
// deletes terminal jobs past their retention window. Sweeps are guarded by
// advisory locks in the repository, so running several replicas is safe.
type ReaperService struct {
	repo            core.ReaperRepository
	logger          *slog.Logger
	interval        time.Duration
	pendingMaxAge   time.Duration
	completedMaxAge time.Duration
	failedMaxAge    time.Duration
	batchSize       int
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.PendingMaxAge <= 0 {
		opts.PendingMaxAge = 24 * time.Hour
	}
	if opts.CompletedMaxAge <= 0 {
		opts.CompletedMaxAge = 7 * 24 * time.Hour
	}
	if opts.FailedMaxAge <= 0 {
		opts.FailedMaxAge = 30 * 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
	}

	return &ReaperService{
		repo:            opts.Repo,
		logger:          logger,
		interval:        opts.Interval,
		pendingMaxAge:   opts.PendingMaxAge,
		completedMaxAge: opts.CompletedMaxAge,
		failedMaxAge:    opts.FailedMaxAge,
		batchSize:       opts.BatchSize,
	}, nil
}

// Run sweeps on the configured interval until the context is canceled. A
// small random jitter is added per cycle so replicas started together do not
// contend on every tick.
func (s *ReaperService) Run(ctx context.Context) error {
	for {
		s.Sweep(ctx)

		jitter := time.Duration(rand.Int63n(int64(s.interval) / 10))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval + jitter):
		}
	}
}

// Sweep runs one cleanup pass. Errors are logged, not returned, so one failed
// statement does not stop the others.
func (s *ReaperService) Sweep(ctx context.Context) {
	failed, err := s.repo.FailStalePendingJobs(ctx, s.pendingMaxAge, s.batchSize)
	if err != nil {
		s.logError(ctx, "fail stale pending jobs", err)
	} else if failed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale pending jobs", "count", failed)
	}

	for _, p := range []struct {
		status model.JobStatus
		maxAge time.Duration
	}{
		{model.JobStatusCompleted, s.completedMaxAge},
		{model.JobStatusFailed, s.failedMaxAge},
	} {
		deleted, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status:    p.status,
			MaxAge:    p.maxAge,
			BatchSize: s.batchSize,
		})
		if err != nil {
			s.logError(ctx, "delete old jobs", err, "status", string(p.status))
		} else if deleted > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted old jobs", "status", string(p.status), "count", deleted)
		}
	}
}

func (s *ReaperService) logError(ctx context.Context, msg string, err error, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg, append([]any{"error", err}, args...)...)
}

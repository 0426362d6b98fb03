// Package reaper wires the job cleanup service to the database for the
// reaper service mode.
package reaper

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/service"
)

// RunnerOptions holds the dependencies for creating the reaper runner.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	Interval        time.Duration
	PendingMaxAge   time.Duration
	CompletedMaxAge time.Duration
	FailedMaxAge    time.Duration
	BatchSize       int

	// Optional dependency injection for testing/decoupling
	Repo core.ReaperRepository
}

// NewRunner constructs the reaper service with its repository wired. The
// returned service's Run method sweeps until its context is cancelled.
func NewRunner(opts RunnerOptions) (*service.ReaperService, error) {
	repo := opts.Repo
	if repo == nil {
		if opts.DB == nil {
			return nil, errors.New("reaper requires a DB handle or an explicit ReaperRepository")
		}
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:            repo,
		Logger:          opts.Logger,
		Interval:        opts.Interval,
		PendingMaxAge:   opts.PendingMaxAge,
		CompletedMaxAge: opts.CompletedMaxAge,
		FailedMaxAge:    opts.FailedMaxAge,
		BatchSize:       opts.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

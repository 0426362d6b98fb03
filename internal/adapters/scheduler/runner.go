// Package scheduler enqueues refresh scrapes for products that have not been
// observed yet today.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/model"
	"github.com/pricetrack/pricetrack/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB        *sql.DB
	Logger    *slog.Logger
	Interval  time.Duration // tick interval; defaults to 15m
	BatchSize int           // max products enqueued per tick; defaults to 100

	// Optional dependency injections for testing/decoupling
	Jobs     core.JobRepository
	Products core.ProductRepository
	Time     data.TimeProvider
}

// Runner ticks at a fixed interval. On every tick it lists products whose last
// observation predates the current UTC day and enqueues one scrape job per
// product, skipping web codes that already have a pending or running job.
type Runner struct {
	jobs      *service.JobService
	products  core.ProductRepository
	time      data.TimeProvider
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewRunner creates a new refresh scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "refresh_scheduler")

	jobsRepo := opts.Jobs
	if jobsRepo == nil {
		if opts.DB == nil {
			return nil, errors.New("scheduler requires a DB handle or an explicit JobRepository")
		}
		jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	products := opts.Products
	if products == nil {
		if opts.DB == nil {
			return nil, errors.New("scheduler requires a DB handle or an explicit ProductRepository")
		}
		products = data.NewProductRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Repo:   jobsRepo,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new job service: %w", err)
	}

	tp := opts.Time
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Runner{
		jobs:      jobService,
		products:  products,
		time:      tp,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}, nil
}

// Run ticks until the context is cancelled. Tick errors are logged and the
// loop keeps going.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting refresh scheduler", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			enqueued, err := r.Tick(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "scheduler tick error", "error", err)
			} else if enqueued > 0 {
				r.logger.InfoContext(ctx, "scheduler enqueued refresh jobs", "count", enqueued)
			}
		}
	}
}

// Tick enqueues refresh jobs for stale products and returns how many it
// enqueued. A product is stale when its last observation predates the current
// UTC calendar day, the same day boundary ingestion uses for its no-op
// decision.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	now := r.time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	webCodes, err := r.products.ListStaleWebCodes(ctx, dayStart, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale products: %w", err)
	}

	enqueued := 0
	for _, webCode := range webCodes {
		if ctx.Err() != nil {
			return enqueued, ctx.Err()
		}

		active, err := r.jobs.HasActiveJobForWebCode(ctx, webCode)
		if err != nil {
			return enqueued, fmt.Errorf("check active job for %s: %w", webCode, err)
		}
		if active {
			continue
		}

		if _, err := r.jobs.Create(ctx, &model.CreateJobRequest{WebCode: webCode}); err != nil {
			return enqueued, fmt.Errorf("enqueue refresh for %s: %w", webCode, err)
		}
		enqueued++
	}
	return enqueued, nil
}

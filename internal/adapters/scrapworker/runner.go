// Package scrapworker runs the scrape worker pool: it reserves queued jobs,
// fetches and normalizes the product snapshot with bounded retry, hands the
// snapshot to ingestion, and records the terminal outcome on the job.
package scrapworker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/job"
	"github.com/pricetrack/pricetrack/internal/domain/model"
	"github.com/pricetrack/pricetrack/internal/domain/retry"
	"github.com/pricetrack/pricetrack/internal/service"
)

// RunnerOptions configures the scrape worker runner.
type RunnerOptions struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Fetcher     core.ProductFetcher // Required: source of product snapshots
	Logger      *slog.Logger

	// Job processing settings
	Lease       time.Duration // per-job lease duration; defaults to 60s
	Concurrency int           // number of worker goroutines; defaults to 1
	RetryPolicy retry.Policy  // zero value means retry.DefaultPolicy()

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo     core.JobRepository
	ProductsRepo core.ProductRepository
	HistoryRepo  core.HistoryRepository
	Notifier     job.Notifier
	Sleep        retry.SleepFunc
}

// Runner processes scrape jobs until its context is canceled.
type Runner struct {
	jobs    *service.JobService
	ingest  *service.IngestService
	fetcher core.ProductFetcher
	retrier *retry.Executor
	logger  *slog.Logger
	lease   time.Duration
	workers int
}

// NewRunner creates a new scrape worker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("ProductFetcher is required")
	}

	logger := resolveLogger(opts.Logger)

	jobsRepo := opts.JobsRepo
	if jobsRepo == nil {
		if opts.DB == nil {
			return nil, errors.New("scrap worker requires a DB handle or an explicit JobRepository")
		}
		jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	productsRepo := opts.ProductsRepo
	if productsRepo == nil {
		if opts.DB == nil {
			return nil, errors.New("scrap worker requires a DB handle or an explicit ProductRepository")
		}
		productsRepo = data.NewProductRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	historyRepo := opts.HistoryRepo
	if historyRepo == nil {
		if opts.RedisClient == nil {
			return nil, errors.New("scrap worker requires a redis client or an explicit HistoryRepository")
		}
		historyRepo = data.NewRedisHistoryRepo(opts.RedisClient)
	}

	notifier := opts.Notifier
	if notifier == nil {
		n, err := job.NewNotifier(job.NotifierOptions{Waiter: jobsRepo})
		if err != nil {
			return nil, fmt.Errorf("new notifier: %w", err)
		}
		notifier = n
	}

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Repo:     jobsRepo,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new job service: %w", err)
	}

	ingestService, err := service.NewIngestService(service.IngestServiceOptions{
		Products: productsRepo,
		History:  historyRepo,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new ingest service: %w", err)
	}

	policy := opts.RetryPolicy
	if policy == (retry.Policy{}) {
		policy = retry.DefaultPolicy()
	}
	var retryOpts []retry.Option
	if opts.Sleep != nil {
		retryOpts = append(retryOpts, retry.WithSleep(opts.Sleep))
	}

	return &Runner{
		jobs:    jobService,
		ingest:  ingestService,
		fetcher: opts.Fetcher,
		retrier: retry.New(policy, retryOpts...),
		logger:  logger,
		lease:   resolveLease(opts.Lease),
		workers: resolveWorkers(opts.Concurrency),
	}, nil
}

// Run starts the worker pool and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scrape worker", "workers", r.workers, "lease", r.lease)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}
	return group.Wait()
}

func (r *Runner) runWorkerLoop(ctx context.Context) error {
	unsub, ch := r.jobs.Subscribe()
	defer unsub()

	for ctx.Err() == nil {
		j, err := r.jobs.ReserveNext(ctx, r.leaseSeconds())
		switch {
		case err == nil:
			if j != nil {
				r.processJob(ctx, j)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		default:
			r.logger.ErrorContext(ctx, "failed to reserve next scrape job", "error", err)
			return err
		}
	}
	return ctx.Err()
}

// scrapeOutcome bundles what a successful fetch+ingest produced, so the job
// result payload can be assembled after the retry loop.
type scrapeOutcome struct {
	snapshot *model.ProductSnapshot
	result   service.IngestResult
}

// processJob drives one job from running to a terminal state. The retry loop
// wraps the whole fetch+ingest unit; re-running ingestion after a transient
// store error is safe because ingestion is idempotent within a calendar day.
func (r *Runner) processJob(ctx context.Context, j *model.Job) {
	r.logger.InfoContext(ctx, "processing scrape job", "job_id", j.ID, "web_code", j.WebCode)

	stopHB := r.startHeartbeat(ctx, j.ID)
	defer stopHB()

	start := time.Now()
	res, err := retry.Do(ctx, r.retrier, func(ctx context.Context) (*scrapeOutcome, error) {
		snap, ferr := r.fetcher.Fetch(ctx, j.WebCode)
		if ferr != nil {
			return nil, ferr
		}
		if snap == nil {
			// Not found at the source; retried per policy.
			return nil, nil
		}
		ingested, ierr := r.ingest.Ingest(ctx, snap)
		if ierr != nil {
			return nil, fmt.Errorf("ingest %s: %w", j.WebCode, ierr)
		}
		return &scrapeOutcome{snapshot: snap, result: ingested}, nil
	})

	switch {
	case err != nil:
		r.failJob(ctx, j, res.Attempts, err, time.Since(start))
	case res.Value == nil:
		// RetryOnEmpty disabled and the product does not exist.
		r.failJob(ctx, j, res.Attempts, errors.New("product not found at source"), time.Since(start))
	default:
		r.completeJob(ctx, j, res, time.Since(start))
	}
}

func (r *Runner) completeJob(ctx context.Context, j *model.Job, res retry.Result[scrapeOutcome], elapsed time.Duration) {
	outcome := res.Value
	payload := model.JobResultPayload{
		Outcome:    outcome.result.Outcome,
		ProductID:  outcome.result.ProductID,
		WebCode:    outcome.snapshot.WebCode,
		PriceCents: outcome.snapshot.PriceCents,
		SaveCents:  outcome.snapshot.SaveCents,
		ObservedAt: outcome.snapshot.ObservedAt.UTC(),
		Attempts:   res.Attempts,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to marshal job result", "job_id", j.ID, "error", err)
		raw = nil
	}

	productID := outcome.result.ProductID
	ok, err := r.jobs.Complete(ctx, core.CompleteJobParams{
		JobID:     j.ID,
		Result:    raw,
		ProductID: &productID,
		Attempts:  res.Attempts,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark job as completed", "job_id", j.ID, "error", err)
		return
	}
	if !ok {
		r.logger.WarnContext(ctx, "job no longer running, result dropped", "job_id", j.ID)
		return
	}
	r.logger.InfoContext(ctx, "scrape job completed",
		"job_id", j.ID,
		"web_code", j.WebCode,
		"outcome", outcome.result.Outcome,
		"attempts", res.Attempts,
		"elapsed", elapsed,
	)
}

func (r *Runner) failJob(ctx context.Context, j *model.Job, attempts int, cause error, elapsed time.Duration) {
	r.logger.ErrorContext(ctx, "scrape job failed",
		"job_id", j.ID,
		"web_code", j.WebCode,
		"attempts", attempts,
		"elapsed", elapsed,
		"error", cause,
	)
	if _, ferr := r.jobs.Fail(ctx, core.FailJobParams{
		JobID:    j.ID,
		ErrMsg:   cause.Error(),
		Attempts: attempts,
	}); ferr != nil {
		r.logger.ErrorContext(ctx, "failed to mark job as failed", "job_id", j.ID, "error", ferr)
	}
}

// startHeartbeat extends the job lease on a ticker so a long retry window
// (fetch timeouts plus backoff sleeps) does not let the lease lapse and the
// job get redelivered mid-flight.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.jobs.Heartbeat(ctx, jobID, r.leaseSeconds()); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (job may be lost)", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	if notify == nil {
		// No notifier wired; poll instead.
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Second):
			return true
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

func (r *Runner) leaseSeconds() int {
	return int(r.lease / time.Second)
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveLease(lease time.Duration) time.Duration {
	if lease > 0 {
		return lease
	}
	return 60 * time.Second
}

func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	return 1
}

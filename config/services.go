package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeScrapeWorker runs the scrape worker pool.
	ServiceModeScrapeWorker ServiceMode = "scrape-worker"
	// ServiceModeScheduler runs the daily refresh scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeScrapeWorker,
		ServiceModeScheduler,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeScrapeWorker, ServiceModeScheduler, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, scrape-worker, scheduler, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ScrapeWorkerConfig contains scrape worker service configuration.
type ScrapeWorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"SCRAPE_WORKER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a scrape job.
	JobLease time.Duration `env:"SCRAPE_WORKER_JOB_LEASE" envDefault:"60s"`

	// MaxAttempts is the total number of fetch attempts per job, including the first.
	MaxAttempts int `env:"SCRAPE_WORKER_MAX_ATTEMPTS" envDefault:"3"`

	// InitialDelay is the backoff before the second fetch attempt.
	InitialDelay time.Duration `env:"SCRAPE_WORKER_INITIAL_DELAY" envDefault:"5s"`

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64 `env:"SCRAPE_WORKER_BACKOFF_FACTOR" envDefault:"2"`

	// RetryOnEmpty controls whether a product missing at the source counts as
	// a retryable failure.
	RetryOnEmpty bool `env:"SCRAPE_WORKER_RETRY_ON_EMPTY" envDefault:"true"`
}

// Sanitize applies guardrails to scrape worker configuration values.
func (s *ScrapeWorkerConfig) Sanitize() {
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.JobLease < 5*time.Second {
		s.JobLease = 5 * time.Second
	}
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 1
	}
	if s.BackoffFactor < 1 {
		s.BackoffFactor = 1
	}
	if s.InitialDelay < 0 {
		s.InitialDelay = 0
	}
}

// SchedulerConfig contains refresh scheduler service configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"15m"`

	// BatchSize is the maximum number of refresh jobs enqueued per tick.
	BatchSize int `env:"SCHEDULER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// Interval is the sweep interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is how long a job may sit pending before it is failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// CompletedMaxAge is the retention window for completed jobs.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"`

	// FailedMaxAge is the retention window for failed jobs.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"720h"`

	// BatchSize is the number of rows affected per cleanup statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = time.Second
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
}

// FetcherConfig contains product fetcher configuration.
type FetcherConfig struct {
	// BaseURL is the product API origin.
	BaseURL string `env:"FETCHER_BASE_URL" envDefault:"https://www.bestbuy.ca"`

	// Timeout bounds a single fetch request.
	Timeout time.Duration `env:"FETCHER_TIMEOUT" envDefault:"20s"`

	// UserAgent is sent on every fetch request.
	UserAgent string `env:"FETCHER_USER_AGENT" envDefault:"pricetrack/1.0"`
}

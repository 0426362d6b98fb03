package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricetrack/pricetrack/config"
	"github.com/pricetrack/pricetrack/internal/adapters/bestbuy"
	"github.com/pricetrack/pricetrack/internal/adapters/reaper"
	"github.com/pricetrack/pricetrack/internal/adapters/scheduler"
	"github.com/pricetrack/pricetrack/internal/adapters/scrapworker"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/job"
	"github.com/pricetrack/pricetrack/internal/domain/retry"
	"github.com/pricetrack/pricetrack/internal/service"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds shared application services and repositories.
type ServiceContainer struct {
	Jobs     *service.JobService
	Products *data.ProductRepo
	History  *data.RedisHistoryRepo
	Notifier job.Notifier
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices constructs the shared service container.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database handle is required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required")
	}

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger})

	notifier, err := job.NewNotifier(job.NotifierOptions{Waiter: jobRepo})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("new notifier: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:     jobRepo,
		Notifier: notifier,
		Logger:   deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("new job service: %w", err)
	}

	return ServiceContainer{
		Jobs:     jobs,
		Products: data.NewProductRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
		History:  data.NewRedisHistoryRepo(deps.RedisClient),
		Notifier: notifier,
	}, nil
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Services    ServiceContainer
	Logger      *slog.Logger
}

// backgroundService couples a service mode with its blocking start function.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(ctx context.Context) error
}

// backgroundServiceHandle tracks a started background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig) []backgroundService {
	appCfg := cfg.Config
	return []backgroundService{
		{
			mode: config.ServiceModeScrapeWorker,
			name: "scrape worker",
			start: func(ctx context.Context) error {
				fetcher := bestbuy.NewFetcher(bestbuy.FetcherOptions{
					BaseURL:    appCfg.Fetcher.BaseURL,
					HTTPClient: &http.Client{Timeout: appCfg.Fetcher.Timeout},
					UserAgent:  appCfg.Fetcher.UserAgent,
					Logger:     cfg.Logger,
				})
				runner, err := scrapworker.NewRunner(scrapworker.RunnerOptions{
					DB:          cfg.DB,
					RedisClient: cfg.RedisClient,
					Fetcher:     fetcher,
					Logger:      cfg.Logger,
					Lease:       appCfg.ScrapeWorker.JobLease,
					Concurrency: appCfg.ScrapeWorker.Concurrency,
					RetryPolicy: retry.Policy{
						MaxAttempts:  appCfg.ScrapeWorker.MaxAttempts,
						InitialDelay: appCfg.ScrapeWorker.InitialDelay,
						Factor:       appCfg.ScrapeWorker.BackoffFactor,
						RetryOnEmpty: appCfg.ScrapeWorker.RetryOnEmpty,
					},
					Notifier: cfg.Services.Notifier,
				})
				if err != nil {
					return err
				}
				return runner.Run(ctx)
			},
		},
		{
			mode: config.ServiceModeScheduler,
			name: "refresh scheduler",
			start: func(ctx context.Context) error {
				runner, err := scheduler.NewRunner(scheduler.RunnerOptions{
					DB:        cfg.DB,
					Logger:    cfg.Logger,
					Interval:  appCfg.Scheduler.Interval,
					BatchSize: appCfg.Scheduler.BatchSize,
				})
				if err != nil {
					return err
				}
				return runner.Run(ctx)
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				svc, err := reaper.NewRunner(reaper.RunnerOptions{
					DB:              cfg.DB,
					Logger:          cfg.Logger,
					Interval:        appCfg.Reaper.Interval,
					PendingMaxAge:   appCfg.Reaper.PendingMaxAge,
					CompletedMaxAge: appCfg.Reaper.CompletedMaxAge,
					FailedMaxAge:    appCfg.Reaper.FailedMaxAge,
					BatchSize:       appCfg.Reaper.BatchSize,
				})
				if err != nil {
					return err
				}
				return svc.Run(ctx)
			},
		},
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, len(enabled)+1)

	var httpServer *http.Server
	if enabled[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
		go func() {
			if serveErr := httpServer.ListenAndServe(); serveErr != nil &&
				!errors.Is(serveErr, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", serveErr)
			}
		}()
		logger.Info("http server started", "addr", httpServer.Addr)
	}

	var handles []backgroundServiceHandle
	for _, svc := range buildBackgroundServices(cfg) {
		if !enabled[svc.mode] {
			continue
		}
		done := make(chan struct{})
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
		go func(svc backgroundService) {
			defer close(done)
			logger.Info(svc.name + " started")
			if runErr := svc.start(serviceCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", svc.name, runErr)
			}
		}(svc)
	}

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		httpTimeout: cfg.Config.HTTP.ShutdownTimeout,
		notifier:    cfg.Services.Notifier,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	httpTimeout time.Duration
	notifier    job.Notifier
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.notifier != nil {
		cfg.notifier.StopAll()
	}

	if cfg.httpServer != nil {
		timeout := cfg.httpTimeout
		if timeout <= 0 {
			timeout = shutdownWaitTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := cfg.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		cfg.logger.Info("http server stopped")
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}

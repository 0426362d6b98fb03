package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/pricetrack/pricetrack/config"
	httpx "github.com/pricetrack/pricetrack/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer builds the API server. The caller starts it with
// ListenAndServe and owns its shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:     cfg.Services.Jobs,
		Products: cfg.Services.Products,
		History:  cfg.Services.History,
		Logger:   logger,
	})

	return &http.Server{
		Addr:              appCfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
	}
}

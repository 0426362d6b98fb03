package httpx

import (
	"log/slog"
	"net/http"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     *service.JobService
	Products core.ProductRepository
	History  core.HistoryRepository
	Logger   *slog.Logger // optional
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	productHandlers := &ProductHandlers{Products: services.Products, History: services.History}

	registerJobRoutes(mux, jobHandlers)
	registerProductRoutes(mux, productHandlers)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return withRequestLogging(mux, services.Logger)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs/stats", h.GetStats)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
}

func registerProductRoutes(mux *http.ServeMux, h *ProductHandlers) {
	mux.HandleFunc("GET /api/products/{webCode}", h.GetProduct)
	mux.HandleFunc("GET /api/products/{webCode}/history", h.GetHistory)
}

func withRequestLogging(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		)
	})
}

// Package httpx provides HTTP handlers for the price tracking API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/model"
	"github.com/pricetrack/pricetrack/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc *service.JobService
}

// CreateJob enqueues a scrape job for a web code. When an equivalent job is
// already pending or running the existing queue position is reused and a 409
// is returned so callers do not pile up duplicate scrapes.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
		return
	}

	active, err := h.Svc.HasActiveJobForWebCode(r.Context(), req.WebCode)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "create_failed", Err: err})
		return
	}
	if active {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "job_exists",
			Err:     errors.New("a scrape job for this web code is already queued"),
		})
		return
	}

	job, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "create_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// GetJob returns a job by id, including its result payload once completed.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id must be a UUID"),
		})
		return
	}

	job, err := h.Svc.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, data.ErrJobNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
		return
	case err != nil:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetStats returns queue counters by status.
func (h *JobHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

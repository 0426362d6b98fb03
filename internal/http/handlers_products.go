package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
)

const defaultHistoryLimit = 100

// ProductHandlers provides HTTP handlers for product and price history reads.
type ProductHandlers struct {
	Products core.ProductRepository
	History  core.HistoryRepository
}

// GetProduct returns the stored product for a web code.
func (h *ProductHandlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	webCode := r.PathValue("webCode")
	if webCode == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("web code is required"),
		})
		return
	}

	product, err := h.Products.GetByWebCode(r.Context(), webCode)
	switch {
	case errors.Is(err, data.ErrProductNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
		return
	case err != nil:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, product)
}

// GetHistory returns the most recent price observations for a web code,
// oldest first. The limit query parameter caps the window.
func (h *ProductHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	webCode := r.PathValue("webCode")
	if webCode == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("web code is required"),
		})
		return
	}
	limit := parseIntQuery(r, "limit", defaultHistoryLimit)

	entries, err := h.History.ListByWebCode(r.Context(), webCode, limit)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "history_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, entries)
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// stubProductRepo serves a fixed product for handler tests.
type stubProductRepo struct {
	product *model.Product
	err     error
}

func (s *stubProductRepo) GetByWebCode(_ context.Context, _ string) (*model.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.product == nil {
		return nil, data.ErrProductNotFound
	}
	return s.product, nil
}

func (s *stubProductRepo) Insert(_ context.Context, _ *model.ProductSnapshot) (*model.Product, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProductRepo) UpdateObservation(_ context.Context, _ core.UpdateObservationParams) error {
	return errors.New("not implemented")
}

func (s *stubProductRepo) ListStaleWebCodes(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return nil, errors.New("not implemented")
}

// stubHistoryRepo serves fixed history entries and records the limit it saw.
type stubHistoryRepo struct {
	entries  []*model.PriceEntry
	gotLimit int
}

func (s *stubHistoryRepo) Append(_ context.Context, _ *model.PriceEntry) error {
	return errors.New("not implemented")
}

func (s *stubHistoryRepo) ListByWebCode(_ context.Context, _ string, limit int) ([]*model.PriceEntry, error) {
	s.gotLimit = limit
	return s.entries, nil
}

func newProductRouter(products *stubProductRepo, history *stubHistoryRepo) http.Handler {
	mux := http.NewServeMux()
	registerProductRoutes(mux, &ProductHandlers{Products: products, History: history})
	return mux
}

func TestGetProduct(t *testing.T) {
	products := &stubProductRepo{product: &model.Product{
		ID:         42,
		WebCode:    "17924062",
		Title:      "LG 65\" OLED TV",
		PriceCents: 259999,
		SaveCents:  40000,
	}}
	router := newProductRouter(products, &stubHistoryRepo{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/17924062", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var product model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	assert.Equal(t, int64(42), product.ID)
	assert.Equal(t, int64(259999), product.PriceCents)
}

func TestGetProductNotFound(t *testing.T) {
	router := newProductRouter(&stubProductRepo{}, &stubHistoryRepo{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/999", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistory(t *testing.T) {
	history := &stubHistoryRepo{entries: []*model.PriceEntry{
		{WebCode: "17924062", PriceCents: 299999, ObservedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)},
		{WebCode: "17924062", PriceCents: 259999, ObservedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
	}}
	router := newProductRouter(&stubProductRepo{}, history)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/17924062/history", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, history.gotLimit)

	var entries []*model.PriceEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(299999), entries[0].PriceCents)
}

func TestGetHistoryCustomLimit(t *testing.T) {
	history := &stubHistoryRepo{}
	router := newProductRouter(&stubProductRepo{}, history)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/17924062/history?limit=5", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.gotLimit)
}

func TestGetHistoryBadLimitFallsBack(t *testing.T) {
	history := &stubHistoryRepo{}
	router := newProductRouter(&stubProductRepo{}, history)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/17924062/history?limit=banana", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, history.gotLimit)
}

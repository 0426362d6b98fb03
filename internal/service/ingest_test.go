package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// mockProductRepo is a mock implementation of core.ProductRepository for testing.
type mockProductRepo struct {
	getByWebCodeFunc      func(ctx context.Context, webCode string) (*model.Product, error)
	insertFunc            func(ctx context.Context, snap *model.ProductSnapshot) (*model.Product, error)
	updateObservationFunc func(ctx context.Context, params core.UpdateObservationParams) error
	listStaleFunc         func(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

func (m *mockProductRepo) GetByWebCode(ctx context.Context, webCode string) (*model.Product, error) {
	if m.getByWebCodeFunc != nil {
		return m.getByWebCodeFunc(ctx, webCode)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProductRepo) Insert(ctx context.Context, snap *model.ProductSnapshot) (*model.Product, error) {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, snap)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProductRepo) UpdateObservation(ctx context.Context, params core.UpdateObservationParams) error {
	if m.updateObservationFunc != nil {
		return m.updateObservationFunc(ctx, params)
	}
	return errors.New("not implemented")
}

func (m *mockProductRepo) ListStaleWebCodes(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if m.listStaleFunc != nil {
		return m.listStaleFunc(ctx, cutoff, limit)
	}
	return nil, errors.New("not implemented")
}

// mockHistoryRepo is a mock implementation of core.HistoryRepository for testing.
type mockHistoryRepo struct {
	appendFunc func(ctx context.Context, entry *model.PriceEntry) error
	entries    []*model.PriceEntry
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *model.PriceEntry) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, entry)
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) ListByWebCode(_ context.Context, _ string, _ int) ([]*model.PriceEntry, error) {
	return m.entries, nil
}

func testSnapshot(observed time.Time) *model.ProductSnapshot {
	return &model.ProductSnapshot{
		WebCode:    "17924062",
		Title:      "LG 65\" OLED TV",
		Model:      "OLED65G4SUB",
		URL:        "https://example.com/p/17924062",
		PriceCents: 259999,
		SaveCents:  40000,
		ObservedAt: observed,
	}
}

func newTestIngest(t *testing.T, products *mockProductRepo, history *mockHistoryRepo, now time.Time) *IngestService {
	t.Helper()
	svc, err := NewIngestService(IngestServiceOptions{
		Products: products,
		History:  history,
		Time:     data.NewFixedTimeProvider(now),
	})
	require.NoError(t, err)
	return svc
}

func TestIngestInsertsNewProduct(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)

	var inserted *model.ProductSnapshot
	products := &mockProductRepo{
		getByWebCodeFunc: func(_ context.Context, _ string) (*model.Product, error) {
			return nil, data.ErrProductNotFound
		},
		insertFunc: func(_ context.Context, s *model.ProductSnapshot) (*model.Product, error) {
			inserted = s
			return &model.Product{ID: 42, WebCode: s.WebCode, PriceCents: s.PriceCents}, nil
		},
	}
	history := &mockHistoryRepo{}

	svc := newTestIngest(t, products, history, now)
	res, err := svc.Ingest(context.Background(), snap)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInserted, res.Outcome)
	assert.Equal(t, int64(42), res.ProductID)
	require.NotNil(t, inserted)
	require.Len(t, history.entries, 1)
	assert.Equal(t, snap.WebCode, history.entries[0].WebCode)
	assert.Equal(t, snap.PriceCents, history.entries[0].PriceCents)
}

func TestIngestUpdatesChangedPrice(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)

	var updated *core.UpdateObservationParams
	products := &mockProductRepo{
		getByWebCodeFunc: func(_ context.Context, _ string) (*model.Product, error) {
			return &model.Product{
				ID:         42,
				WebCode:    snap.WebCode,
				PriceCents: 299999, // differs from the snapshot
				UpdatedAt:  now,    // even on the same day, a changed price writes
			}, nil
		},
		updateObservationFunc: func(_ context.Context, params core.UpdateObservationParams) error {
			updated = &params
			return nil
		},
	}
	history := &mockHistoryRepo{}

	svc := newTestIngest(t, products, history, now)
	res, err := svc.Ingest(context.Background(), snap)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdatedChanged, res.Outcome)
	assert.Equal(t, int64(42), res.ProductID)
	require.NotNil(t, updated)
	assert.Equal(t, snap.PriceCents, updated.PriceCents)
	require.Len(t, history.entries, 1)
}

func TestIngestSameDayUnchangedIsNoOp(t *testing.T) {
	now := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)

	products := &mockProductRepo{
		getByWebCodeFunc: func(_ context.Context, _ string) (*model.Product, error) {
			return &model.Product{
				ID:         42,
				WebCode:    snap.WebCode,
				PriceCents: snap.PriceCents,
				UpdatedAt:  time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC), // same UTC day
			}, nil
		},
		// updateObservationFunc left nil: a write would error the test
	}
	history := &mockHistoryRepo{
		appendFunc: func(_ context.Context, _ *model.PriceEntry) error {
			return errors.New("unexpected history append")
		},
	}

	svc := newTestIngest(t, products, history, now)
	res, err := svc.Ingest(context.Background(), snap)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoActionSameDayUnchanged, res.Outcome)
	assert.Equal(t, int64(42), res.ProductID)
}

func TestIngestUnchangedPriceRefreshesOnNewDay(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 30, 0, 0, time.UTC)
	snap := testSnapshot(now)

	var updated *core.UpdateObservationParams
	products := &mockProductRepo{
		getByWebCodeFunc: func(_ context.Context, _ string) (*model.Product, error) {
			return &model.Product{
				ID:         42,
				WebCode:    snap.WebCode,
				PriceCents: snap.PriceCents,
				UpdatedAt:  time.Date(2026, 8, 29, 23, 45, 0, 0, time.UTC), // previous UTC day
			}, nil
		},
		updateObservationFunc: func(_ context.Context, params core.UpdateObservationParams) error {
			updated = &params
			return nil
		},
	}
	history := &mockHistoryRepo{}

	svc := newTestIngest(t, products, history, now)
	res, err := svc.Ingest(context.Background(), snap)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdatedToday, res.Outcome)
	require.NotNil(t, updated)
	require.Len(t, history.entries, 1, "a cross-day refresh still records a history point")
}

func TestIngestProductWriteFailureAppendsNoHistory(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)

	products := &mockProductRepo{
		getByWebCodeFunc: func(_ context.Context, _ string) (*model.Product, error) {
			return nil, data.ErrProductNotFound
		},
		insertFunc: func(_ context.Context, _ *model.ProductSnapshot) (*model.Product, error) {
			return nil, errors.New("disk full")
		},
	}
	history := &mockHistoryRepo{}

	svc := newTestIngest(t, products, history, now)
	_, err := svc.Ingest(context.Background(), snap)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, history.entries, "history must only record successful product writes")
}

func TestIngestRejectsInvalidSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)
	snap.WebCode = ""

	svc := newTestIngest(t, &mockProductRepo{}, &mockHistoryRepo{}, now)
	_, err := svc.Ingest(context.Background(), snap)

	require.Error(t, err)
}

func TestIngestLookupErrorPropagates(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)

	products := &mockProductRepo{
		getByWebCodeFunc: func(_ context.Context, _ string) (*model.Product, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := newTestIngest(t, products, &mockHistoryRepo{}, now)
	_, err := svc.Ingest(context.Background(), snap)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewIngestServiceRequiresRepos(t *testing.T) {
	_, err := NewIngestService(IngestServiceOptions{History: &mockHistoryRepo{}})
	require.Error(t, err)

	_, err = NewIngestService(IngestServiceOptions{Products: &mockProductRepo{}})
	require.Error(t, err)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// IngestServiceOptions groups dependencies for IngestService.
type IngestServiceOptions struct {
	Products core.ProductRepository // Required: product repository
	History  core.HistoryRepository // Required: append-only price ledger
	Logger   *slog.Logger           // Optional: structured logger
	Time     data.TimeProvider      // Optional: time source, defaults to real time
}

// IngestService decides, for each normalized snapshot, between inserting a new
// product, updating the existing one, and doing nothing at all. It owns every
// write to the product store and the price ledger.
//
// The same-calendar-day check is the idempotence guarantee: re-ingesting an
// unchanged price for a web code on the same UTC day is a true no-op. Two
// concurrent ingestions for the same web code can still race the
// read-then-write; that race is accepted and at worst duplicates one history
// entry, it never loses a product.
type IngestService struct {
	products core.ProductRepository
	history  core.HistoryRepository
	logger   *slog.Logger
	time     data.TimeProvider
}

// NewIngestService constructs a new IngestService.
func NewIngestService(opts IngestServiceOptions) (*IngestService, error) {
	if opts.Products == nil {
		return nil, errors.New("ProductRepository is required")
	}
	if opts.History == nil {
		return nil, errors.New("HistoryRepository is required")
	}

	tp := opts.Time
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "ingest_service")
	}

	return &IngestService{
		products: opts.Products,
		history:  opts.History,
		logger:   logger,
		time:     tp,
	}, nil
}

// IngestResult reports what Ingest did.
type IngestResult struct {
	ProductID int64
	Outcome   model.IngestOutcome
}

// Ingest looks up the stored product for the snapshot's web code and applies
// the insert / update / no-op decision. A history entry is appended for every
// outcome that wrote, and only after the product write succeeded; a product
// write failure surfaces the storage error and appends nothing.
func (s *IngestService) Ingest(ctx context.Context, snap *model.ProductSnapshot) (IngestResult, error) {
	if snap == nil {
		return IngestResult{}, errors.New("product snapshot is required")
	}
	if err := snap.Validate(); err != nil {
		return IngestResult{}, err
	}

	existing, err := s.products.GetByWebCode(ctx, snap.WebCode)
	switch {
	case errors.Is(err, data.ErrProductNotFound):
		return s.insert(ctx, snap)
	case err != nil:
		return IngestResult{}, fmt.Errorf("look up product %s: %w", snap.WebCode, err)
	}

	return s.reconcile(ctx, existing, snap)
}

func (s *IngestService) insert(ctx context.Context, snap *model.ProductSnapshot) (IngestResult, error) {
	product, err := s.products.Insert(ctx, snap)
	if err != nil {
		return IngestResult{}, fmt.Errorf("insert product %s: %w", snap.WebCode, err)
	}

	if appendErr := s.appendHistory(ctx, snap); appendErr != nil {
		return IngestResult{}, appendErr
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "product inserted",
			"web_code", snap.WebCode,
			"product_id", product.ID,
			"price_cents", snap.PriceCents,
		)
	}
	return IngestResult{ProductID: product.ID, Outcome: model.OutcomeInserted}, nil
}

func (s *IngestService) reconcile(
	ctx context.Context,
	existing *model.Product,
	snap *model.ProductSnapshot,
) (IngestResult, error) {
	if existing.PriceCents != snap.PriceCents {
		return s.update(ctx, existing, snap, model.OutcomeUpdatedChanged)
	}

	// Unchanged price: only refresh when the last observation is from an
	// earlier calendar day.
	if sameCalendarDay(existing.UpdatedAt, s.time.Now()) {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "price unchanged today, no action",
				"web_code", snap.WebCode,
				"product_id", existing.ID,
			)
		}
		return IngestResult{ProductID: existing.ID, Outcome: model.OutcomeNoActionSameDayUnchanged}, nil
	}

	return s.update(ctx, existing, snap, model.OutcomeUpdatedToday)
}

func (s *IngestService) update(
	ctx context.Context,
	existing *model.Product,
	snap *model.ProductSnapshot,
	outcome model.IngestOutcome,
) (IngestResult, error) {
	err := s.products.UpdateObservation(ctx, core.UpdateObservationParams{
		WebCode:    snap.WebCode,
		PriceCents: snap.PriceCents,
		SaveCents:  snap.SaveCents,
		ObservedAt: snap.ObservedAt,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("update product %s: %w", snap.WebCode, err)
	}

	if appendErr := s.appendHistory(ctx, snap); appendErr != nil {
		return IngestResult{}, appendErr
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "product updated",
			"web_code", snap.WebCode,
			"product_id", existing.ID,
			"outcome", outcome,
			"price_cents", snap.PriceCents,
		)
	}
	return IngestResult{ProductID: existing.ID, Outcome: outcome}, nil
}

func (s *IngestService) appendHistory(ctx context.Context, snap *model.ProductSnapshot) error {
	entry := &model.PriceEntry{
		WebCode:    snap.WebCode,
		PriceCents: snap.PriceCents,
		SaveCents:  snap.SaveCents,
		ObservedAt: snap.ObservedAt.UTC(),
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("append price history for %s: %w", snap.WebCode, err)
	}
	return nil
}

// sameCalendarDay compares the UTC calendar dates of the two instants.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

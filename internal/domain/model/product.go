package model

import (
	"strings"
	"time"

	apperrors "github.com/pricetrack/pricetrack/internal/errors"
)

// Product is the normalized, persisted domain entity for a tracked item.
// The surrogate ID is assigned on first insert; the web code is the externally
// supplied natural key and is unique across all products.
type Product struct {
	ID         int64     `json:"id"          db:"id"`
	WebCode    string    `json:"web_code"    db:"web_code"`
	Title      string    `json:"title"       db:"title"`
	Model      string    `json:"model"       db:"model"`
	URL        string    `json:"url"         db:"url"`
	PriceCents int64     `json:"price_cents" db:"price_cents"`
	SaveCents  int64     `json:"save_cents"  db:"save_cents"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}

// ProductSnapshot is a single normalized observation of a product, as produced
// by a fetcher. Monetary amounts are integer cents.
type ProductSnapshot struct {
	WebCode    string    `json:"web_code"`
	Title      string    `json:"title"`
	Model      string    `json:"model"`
	URL        string    `json:"url"`
	PriceCents int64     `json:"price_cents"`
	SaveCents  int64     `json:"save_cents"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validate checks that the snapshot carries every field ingestion requires.
func (s *ProductSnapshot) Validate() error {
	if strings.TrimSpace(s.WebCode) == "" {
		return apperrors.ValidationField("web_code", "web code is required")
	}
	if strings.TrimSpace(s.Title) == "" {
		return apperrors.ValidationField("title", "title is required")
	}
	if s.PriceCents < 0 {
		return apperrors.ValidationField("price_cents", "price must be non-negative")
	}
	if s.SaveCents < 0 {
		return apperrors.ValidationField("save_cents", "save amount must be non-negative")
	}
	if s.ObservedAt.IsZero() {
		return apperrors.ValidationField("observed_at", "observation timestamp is required")
	}
	return nil
}

// PriceEntry is one append-only observation of a product's price at a point in
// time. Entries are never mutated or deleted.
type PriceEntry struct {
	WebCode    string    `json:"web_code"`
	PriceCents int64     `json:"price_cents"`
	SaveCents  int64     `json:"save_cents"`
	ObservedAt time.Time `json:"observed_at"`
}

// IngestOutcome describes what the ingestion decider did with a snapshot.
type IngestOutcome string

const (
	// OutcomeInserted indicates a new product was created.
	OutcomeInserted IngestOutcome = "inserted"
	// OutcomeUpdatedChanged indicates the price changed and the product was updated.
	OutcomeUpdatedChanged IngestOutcome = "updated_changed"
	// OutcomeUpdatedToday indicates the price was unchanged but last seen on an
	// earlier calendar date, so the observation timestamp was refreshed.
	OutcomeUpdatedToday IngestOutcome = "updated_today"
	// OutcomeNoActionSameDayUnchanged indicates an unchanged price already
	// observed today; ingestion was a true no-op.
	OutcomeNoActionSameDayUnchanged IngestOutcome = "no_action_same_day_unchanged"
)

// Wrote reports whether the outcome involved a persistence write (and therefore
// a history append).
func (o IngestOutcome) Wrote() bool {
	return o == OutcomeInserted || o == OutcomeUpdatedChanged || o == OutcomeUpdatedToday
}

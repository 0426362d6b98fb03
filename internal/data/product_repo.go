package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricetrack/pricetrack/internal/core"
	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// ErrProductNotFound is returned when no product exists for a web code.
var ErrProductNotFound = errors.New("product not found")

// ProductRepo provides Postgres operations for the products table. The web
// code is the unique natural key; the surrogate ID is assigned on insert.
type ProductRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewProductRepo creates a new ProductRepo with the given database connection and configuration.
func NewProductRepo(db *sql.DB, cfg RepoConfig) *ProductRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &ProductRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const productColumns = `
  id,
  web_code,
  title,
  model,
  url,
  price_cents,
  save_cents,
  created_at,
  updated_at
`

func scanProduct(row *sql.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID,
		&p.WebCode,
		&p.Title,
		&p.Model,
		&p.URL,
		&p.PriceCents,
		&p.SaveCents,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// GetByWebCode retrieves a product by its natural key.
func (r *ProductRepo) GetByWebCode(ctx context.Context, webCode string) (*model.Product, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE web_code = $1
	`, webCode)

	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product by web code: %w", err)
	}
	return product, nil
}

// Insert creates a product from a snapshot and returns it with its assigned
// surrogate key.
func (r *ProductRepo) Insert(ctx context.Context, snap *model.ProductSnapshot) (*model.Product, error) {
	if snap == nil {
		return nil, errors.New("product snapshot is required")
	}

	observedAt := snap.ObservedAt.UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO products(web_code, title, model, url, price_cents, save_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+productColumns,
		snap.WebCode, snap.Title, snap.Model, snap.URL, snap.PriceCents, snap.SaveCents, observedAt)

	product, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

// UpdateObservation updates the price fields and observation timestamp of an
// existing product. Descriptive fields are immutable after creation.
func (r *ProductRepo) UpdateObservation(ctx context.Context, params core.UpdateObservationParams) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE products
		SET price_cents = $2,
		    save_cents = $3,
		    updated_at = $4
		WHERE web_code = $1
	`, params.WebCode, params.PriceCents, params.SaveCents, params.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("update product observation: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update observation rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListStaleWebCodes returns web codes of products last observed before the
// cutoff, oldest first.
func (r *ProductRepo) ListStaleWebCodes(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT web_code
		FROM products
		WHERE updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale web codes: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	var webCodes []string
	for rows.Next() {
		var webCode string
		if scanErr := rows.Scan(&webCode); scanErr != nil {
			return nil, fmt.Errorf("scan web code: %w", scanErr)
		}
		webCodes = append(webCodes, webCode)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("list stale web codes: %w", rowsErr)
	}
	return webCodes, nil
}

// Package bestbuy fetches product details from the Best Buy Canada product
// API and normalizes them into snapshots.
package bestbuy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pricetrack/pricetrack/internal/data"
	"github.com/pricetrack/pricetrack/internal/domain/model"
	apperrors "github.com/pricetrack/pricetrack/internal/errors"
)

const (
	defaultBaseURL   = "https://www.bestbuy.ca"
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "pricetrack/1.0"
)

// FetcherOptions configures the Best Buy product fetcher.
type FetcherOptions struct {
	BaseURL    string            // defaults to the production site
	HTTPClient *http.Client      // defaults to a client with a 20s timeout
	UserAgent  string            // sent on every request
	Logger     *slog.Logger      // optional structured logger
	Time       data.TimeProvider // optional time source for ObservedAt
}

// Fetcher retrieves a product by web code over the product JSON API.
type Fetcher struct {
	baseURL   string
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	time      data.TimeProvider
}

// NewFetcher constructs a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	tp := opts.Time
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "bestbuy_fetcher")
	}

	return &Fetcher{
		baseURL:   baseURL,
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		time:      tp,
	}
}

// productResponse is the subset of the product API payload this service reads.
// Prices come back as dollar amounts.
type productResponse struct {
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	ModelNumber  string  `json:"modelNumber"`
	ProductURL   string  `json:"productUrl"`
	SalePrice    float64 `json:"salePrice"`
	RegularPrice float64 `json:"regularPrice"`
}

// Fetch retrieves the product for the web code and returns a normalized
// snapshot. A 404 from the API means the product does not exist and yields
// (nil, nil); the caller decides whether that is retryable.
func (f *Fetcher) Fetch(ctx context.Context, webCode string) (*model.ProductSnapshot, error) {
	if strings.TrimSpace(webCode) == "" {
		return nil, apperrors.ValidationField("web_code", "web_code is required")
	}

	url := fmt.Sprintf("%s/api/v2/json/product/%s", f.baseURL, webCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", webCode, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if f.logger != nil {
			f.logger.InfoContext(ctx, "product not found at source", "web_code", webCode)
		}
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch product %s: unexpected status %d", webCode, resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", webCode, err)
	}

	return f.normalize(webCode, &body)
}

// normalize converts the API payload into a snapshot. The stored price is the
// current sale price in cents; the saving is the gap to the regular price,
// clamped at zero.
func (f *Fetcher) normalize(webCode string, body *productResponse) (*model.ProductSnapshot, error) {
	if strings.TrimSpace(body.Name) == "" {
		return nil, errors.New("product payload missing name")
	}

	priceCents := dollarsToCents(body.SalePrice)
	saveCents := dollarsToCents(body.RegularPrice) - priceCents
	if saveCents < 0 {
		saveCents = 0
	}

	code := body.SKU
	if code == "" {
		code = webCode
	}

	snap := &model.ProductSnapshot{
		WebCode:    code,
		Title:      body.Name,
		Model:      body.ModelNumber,
		URL:        body.ProductURL,
		PriceCents: priceCents,
		SaveCents:  saveCents,
		ObservedAt: f.time.Now().UTC(),
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("normalize product %s: %w", webCode, err)
	}
	return snap, nil
}

func dollarsToCents(d float64) int64 {
	return int64(math.Round(d * 100))
}

// Package core defines the repository and port interfaces (hexagonal ports)
// between the service layer and the data/adapters layers. Services depend on
// these interfaces, never on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, params CompleteJobParams) (bool, error)
	Fail(ctx context.Context, params FailJobParams) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	// HasActiveJobForWebCode reports whether a pending or running job already
	// exists for the web code.
	HasActiveJobForWebCode(ctx context.Context, webCode string) (bool, error)
}

// CompleteJobParams groups parameters for JobRepository.Complete.
type CompleteJobParams struct {
	JobID     string
	Result    []byte
	ProductID *int64
	Attempts  int
}

// FailJobParams groups parameters for JobRepository.Fail.
type FailJobParams struct {
	JobID    string
	ErrMsg   string
	Attempts int
}

// ProductRepository defines the interface for product data operations.
type ProductRepository interface {
	GetByWebCode(ctx context.Context, webCode string) (*model.Product, error)
	Insert(ctx context.Context, snap *model.ProductSnapshot) (*model.Product, error)
	// UpdateObservation updates the price fields and observation timestamp of
	// an existing product identified by web code.
	UpdateObservation(ctx context.Context, params UpdateObservationParams) error
	// ListStaleWebCodes returns web codes of products last observed before the
	// cutoff, for the refresh scheduler.
	ListStaleWebCodes(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// UpdateObservationParams groups parameters for ProductRepository.UpdateObservation.
type UpdateObservationParams struct {
	WebCode    string
	PriceCents int64
	SaveCents  int64
	ObservedAt time.Time
}

// HistoryRepository defines the interface for the append-only price ledger.
type HistoryRepository interface {
	Append(ctx context.Context, entry *model.PriceEntry) error
	ListByWebCode(ctx context.Context, webCode string, limit int) ([]*model.PriceEntry, error)
}

// ProductFetcher is the extraction port. Fetch returns a normalized snapshot,
// or (nil, nil) when the product does not exist at the source. It must be
// side-effect-free with respect to this service's storage.
type ProductFetcher interface {
	Fetch(ctx context.Context, webCode string) (*model.ProductSnapshot, error)
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// DeleteOldJobsParams groups parameters for ReaperRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

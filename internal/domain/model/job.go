// Package model defines the core data types used throughout the pricetrack job system.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current status of a scrape job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job gave up after exhausting retries.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal returns true if no further transition leaves this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job represents a scrape job with its status and outcome.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	WebCode        string          `json:"web_code"                   db:"web_code"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Result         json.RawMessage `json:"result,omitempty"           db:"result"`
	ProductID      *int64          `json:"product_id,omitempty"       db:"product_id"`
	Attempts       int             `json:"attempts"                   db:"attempts"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to create a new scrape job.
type CreateJobRequest struct {
	WebCode     string     `json:"web_code"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.WebCode) == "" {
		return errors.New("web_code is required")
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobResultPayload is the serialized outcome stored on a completed job.
type JobResultPayload struct {
	Outcome    IngestOutcome `json:"outcome"`
	ProductID  int64         `json:"product_id"`
	WebCode    string        `json:"web_code"`
	PriceCents int64         `json:"price_cents"`
	SaveCents  int64         `json:"save_cents"`
	ObservedAt time.Time     `json:"observed_at"`
	Attempts   int           `json:"attempts"`
}

// Package store defines the interface for persisting build run history.
package store

import (
	"context"
	"errors"
	"time"

	"buildwatch-agent/src/provider"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// Run is one trigger-and-watch execution.
type Run struct {
	// ID is the local run identifier (a UUID, not the provider build ID).
	ID          string
	Provider    string
	Workflow    string
	Ref         string
	Environment string
	// BuildID is the provider-side identifier from the trigger call.
	BuildID string
	// Status is the last known normalized status. Watches that end without
	// a result (timeout, cancellation) leave the run in its last status.
	Status  provider.JobStatus
	Success bool
	URL     string

	StartedAt  time.Time
	FinishedAt time.Time // zero until a terminal status is recorded
}

// Store persists run records.
type Store interface {
	// CreateRun records a freshly triggered run
	CreateRun(ctx context.Context, run *Run) error

	// CompleteRun records the terminal outcome of a run
	CompleteRun(ctx context.Context, runID string, status provider.JobStatus, success bool, url string) error

	// GetRun returns a single run by local ID
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns the most recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Close closes the store connection
	Close() error
}

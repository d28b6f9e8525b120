package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunKind is the direction of a run.
type RunKind string

const (
	RunKindInstall   RunKind = "install"
	RunKindUninstall RunKind = "uninstall"
)

// Run is one Install or Uninstall call of a plan.
type Run struct {
	ID          string     `json:"id"`
	Kind        RunKind    `json:"kind"`
	Planner     string     `json:"planner"`
	Version     string     `json:"version"`
	ReceiptPath string     `json:"receipt_path"`
	Status      RunStatus  `json:"status"`
	TotalSteps  int        `json:"total_steps"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Duration is how long the run took, or zero while it runs.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Step is one action of a run.
type Step struct {
	RunID       string        `json:"run_id"`
	Index       int           `json:"index"`
	Tag         string        `json:"tag"`
	Synopsis    string        `json:"synopsis"`
	Outcome     string        `json:"outcome"` // running until finished, then an engine outcome
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       *string       `json:"error,omitempty"`
}

// Store defines the run history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, id string, status RunStatus, completedAt time.Time, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Step operations
	StartStep(ctx context.Context, step *Step) error
	FinishStep(ctx context.Context, step *Step) error
	ListSteps(ctx context.Context, runID string) ([]*Step, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

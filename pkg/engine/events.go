package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
)

// Stage is the direction a plan is run in.
type Stage string

const (
	// StageInstall executes actions in order.
	StageInstall Stage = "install"

	// StageUninstall reverts actions in reverse order.
	StageUninstall Stage = "uninstall"
)

// EventType identifies an event.
type EventType string

const (
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunFinished  EventType = "run.finished"
	EventTypeStepStarted  EventType = "step.started"
	EventTypeStepFinished EventType = "step.finished"
)

// Outcome is the result of a step or run.
type Outcome string

const (
	// OutcomeSucceeded means the transition ran and succeeded.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeSkipped means the wrapper was already in the target state.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the transition ran and failed.
	OutcomeFailed Outcome = "failed"

	// OutcomeCancelled means the run stopped on a cancellation request.
	OutcomeCancelled Outcome = "cancelled"
)

// Event is one point on the timeline of a run.
type Event struct {
	// ID is unique per event.
	ID string `json:"id"`

	// Type identifies the event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID groups the events of one Install or Uninstall call.
	RunID string `json:"run_id"`

	// Stage is install or uninstall.
	Stage Stage `json:"stage"`

	// Planner is the planner tag of the plan.
	Planner string `json:"planner,omitempty"`

	// Version is the plan version.
	Version string `json:"version,omitempty"`

	// ReceiptPath is where the plan is persisted.
	ReceiptPath string `json:"receipt_path,omitempty"`

	// Index is the position of the step in the plan, for step events.
	Index int `json:"index"`

	// Total is the number of steps in the plan.
	Total int `json:"total"`

	// Tag and Synopsis identify the step's action.
	Tag      action.Tag `json:"tag,omitempty"`
	Synopsis string     `json:"synopsis,omitempty"`

	// Outcome is set on finished events.
	Outcome Outcome `json:"outcome,omitempty"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// Duration is set on finished events.
	Duration time.Duration `json:"duration,omitempty"`
}

// run carries the per-call state used to emit events.
type run struct {
	id      string
	stage   Stage
	plan    *InstallPlan
	started time.Time
}

func (p *InstallPlan) newRun(stage Stage) *run {
	return &run{
		id:      uuid.New().String(),
		stage:   stage,
		plan:    p,
		started: time.Now(),
	}
}

func (r *run) event(typ EventType) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Type:        typ,
		Timestamp:   time.Now(),
		RunID:       r.id,
		Stage:       r.stage,
		Planner:     r.plan.plannerTag(),
		Version:     r.plan.Version,
		ReceiptPath: r.plan.receiptPath,
		Total:       len(r.plan.Actions),
	}
}

// publish delivers e synchronously so subscribers observe steps in order.
// Publishing failures are logged and never fail the run.
func (r *run) publish(ctx context.Context, e *Event) {
	if r.plan.events == nil {
		return
	}
	if err := r.plan.events.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("Failed to publish event")
	}
}

func (r *run) begin(ctx context.Context) {
	r.publish(ctx, r.event(EventTypeRunStarted))
}

func (r *run) stepStarted(ctx context.Context, index int, step *action.Stateful[action.Action]) {
	e := r.event(EventTypeStepStarted)
	e.Index = index
	e.Tag = step.Tag()
	e.Synopsis = step.Synopsis()
	r.publish(ctx, e)
}

func (r *run) stepFinished(ctx context.Context, index int, step *action.Stateful[action.Action], outcome Outcome, err error, d time.Duration) {
	e := r.event(EventTypeStepFinished)
	e.Index = index
	e.Tag = step.Tag()
	e.Synopsis = step.Synopsis()
	e.Outcome = outcome
	e.Duration = d
	if err != nil {
		e.Error = err.Error()
	}
	r.publish(ctx, e)
}

func (r *run) finished(ctx context.Context, err error) {
	e := r.event(EventTypeRunFinished)
	e.Duration = time.Since(r.started)
	switch {
	case err == nil:
		e.Outcome = OutcomeSucceeded
	case IsCancelled(err):
		e.Outcome = OutcomeCancelled
	default:
		e.Outcome = OutcomeFailed
		e.Error = err.Error()
	}
	r.publish(ctx, e)
}

package stores

import (
	"context"

	"github.com/openfroyo/installer/pkg/engine"
)

// Recorder writes engine events into a Store.
type Recorder struct {
	store Store
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// HandleEvent records e. Its signature matches telemetry.EventSubscriber.
func (r *Recorder) HandleEvent(ctx context.Context, e *engine.Event) error {
	switch e.Type {
	case engine.EventTypeRunStarted:
		return r.store.CreateRun(ctx, &Run{
			ID:          e.RunID,
			Kind:        RunKind(e.Stage),
			Planner:     e.Planner,
			Version:     e.Version,
			ReceiptPath: e.ReceiptPath,
			Status:      RunStatusRunning,
			TotalSteps:  e.Total,
			StartedAt:   e.Timestamp,
		})

	case engine.EventTypeRunFinished:
		return r.store.FinishRun(ctx, e.RunID, runStatus(e.Outcome), e.Timestamp, errorText(e.Error))

	case engine.EventTypeStepStarted:
		return r.store.StartStep(ctx, &Step{
			RunID:     e.RunID,
			Index:     e.Index,
			Tag:       string(e.Tag),
			Synopsis:  e.Synopsis,
			StartedAt: e.Timestamp,
		})

	case engine.EventTypeStepFinished:
		completed := e.Timestamp
		return r.store.FinishStep(ctx, &Step{
			RunID:       e.RunID,
			Index:       e.Index,
			Tag:         string(e.Tag),
			Synopsis:    e.Synopsis,
			Outcome:     string(e.Outcome),
			CompletedAt: &completed,
			Duration:    e.Duration,
			Error:       errorText(e.Error),
		})
	}
	return nil
}

func runStatus(o engine.Outcome) RunStatus {
	switch o {
	case engine.OutcomeSucceeded, engine.OutcomeSkipped:
		return RunStatusSucceeded
	case engine.OutcomeCancelled:
		return RunStatusCancelled
	default:
		return RunStatusFailed
	}
}

func errorText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/installer/pkg/engine"
)

// EventSubscriber handles one event. Subscribers are called in the order
// they subscribed, on the goroutine running the plan.
type EventSubscriber func(ctx context.Context, event *engine.Event) error

// EventFilter determines if an event should be delivered.
type EventFilter func(event *engine.Event) bool

// EventPublisher fans engine events out to subscribers. It implements
// engine.EventPublisher.
type EventPublisher struct {
	mu          sync.RWMutex
	subscribers []subscriberEntry
}

type subscriberEntry struct {
	name       string
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher without subscribers.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

// Subscribe adds a subscriber. A nil filter delivers every event.
func (ep *EventPublisher) Subscribe(name string, subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		name:       name,
		subscriber: subscriber,
		filter:     filter,
	})
}

// Publish delivers event to every matching subscriber. Every subscriber sees
// the event even when an earlier one fails; the failures are joined.
func (ep *EventPublisher) Publish(ctx context.Context, event *engine.Event) error {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	var errs []error
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		if err := entry.subscriber(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("subscriber %s: %w", entry.name, err))
		}
	}
	return errors.Join(errs...)
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...engine.EventType) EventFilter {
	typeSet := make(map[engine.EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event *engine.Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event *engine.Event) bool {
		return event.RunID == runID
	}
}

// LogEvents returns a subscriber writing events to logger. Failed steps are
// logged as errors, the rest at debug level.
func LogEvents(logger zerolog.Logger) EventSubscriber {
	return func(_ context.Context, e *engine.Event) error {
		var entry *zerolog.Event
		switch {
		case e.Outcome == engine.OutcomeFailed:
			entry = logger.Error().Str("error", e.Error)
		case e.Outcome == engine.OutcomeCancelled:
			entry = logger.Warn()
		case e.Type == engine.EventTypeRunStarted || e.Type == engine.EventTypeRunFinished:
			entry = logger.Info()
		default:
			entry = logger.Debug()
		}

		entry = entry.
			Str("run_id", e.RunID).
			Str("stage", string(e.Stage))
		if e.Type == engine.EventTypeStepStarted || e.Type == engine.EventTypeStepFinished {
			entry = entry.
				Int("step", e.Index+1).
				Int("total", e.Total).
				Str("action", string(e.Tag))
		}
		if e.Outcome != "" {
			entry = entry.Str("outcome", string(e.Outcome)).Dur("duration", e.Duration)
		}
		entry.Msg(string(e.Type))
		return nil
	}
}

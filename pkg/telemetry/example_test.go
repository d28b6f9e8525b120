package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/installer/pkg/engine"
	"github.com/openfroyo/installer/pkg/telemetry"
)

// ExampleEventPublisher shows a subscriber that only sees failed steps.
func ExampleEventPublisher() {
	events := telemetry.NewEventPublisher()
	events.Subscribe("failures", func(_ context.Context, e *engine.Event) error {
		fmt.Printf("step %d/%d %s: %s\n", e.Index+1, e.Total, e.Tag, e.Error)
		return nil
	}, func(e *engine.Event) bool {
		return e.Type == engine.EventTypeStepFinished && e.Outcome == engine.OutcomeFailed
	})

	ctx := context.Background()
	_ = events.Publish(ctx, &engine.Event{Type: engine.EventTypeStepStarted, Index: 2, Total: 7, Tag: "create_users_and_group"})
	_ = events.Publish(ctx, &engine.Event{
		Type:     engine.EventTypeStepFinished,
		Index:    2,
		Total:    7,
		Tag:      "create_users_and_group",
		Outcome:  engine.OutcomeFailed,
		Error:    "groupadd: exit status 9",
		Duration: time.Second,
	})

	// Output:
	// step 3/7 create_users_and_group: groupadd: exit status 9
}

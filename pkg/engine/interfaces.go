package engine

import (
	"context"

	"github.com/openfroyo/installer/pkg/action"
)

// Planner inspects a host and produces the ordered actions that install the
// runtime on it.
type Planner interface {
	// Tag returns the stable planner name written into receipts.
	Tag() string

	// PlatformCheck fails when the host cannot run this planner at all.
	PlatformCheck(ctx context.Context) error

	// PreInstallCheck verifies the environment before installing.
	PreInstallCheck(ctx context.Context) error

	// PreUninstallCheck verifies the environment before uninstalling.
	PreUninstallCheck(ctx context.Context) error

	// Plan produces the ordered action list.
	Plan(ctx context.Context) ([]*action.Stateful[action.Action], error)

	// Settings returns every setting with its effective value.
	Settings() (map[string]any, error)

	// ConfiguredSettings returns the settings whose value differs from the
	// planner defaults.
	ConfiguredSettings() (map[string]any, error)
}

// SelfTester verifies a finished installation.
//
// A Planner may implement it; NewPlan and LoadReceipt pick it up unless a
// tester is supplied with WithSelfTester.
type SelfTester interface {
	SelfTest(ctx context.Context) error
}

// ReceiptUser is a Planner that needs to know where its plan is
// checkpointed. Configure hands it the receipt path.
type ReceiptUser interface {
	UseReceipt(path string)
}

// EventPublisher receives run and step events.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/installer/pkg/action"
)

var tracer = otel.Tracer("github.com/openfroyo/installer/pkg/engine")

// InstallPlan is a versioned, ordered list of actions plus the planner that
// produced them. The order of Actions is the only ordering guarantee.
type InstallPlan struct {
	// Version is the engine version that built the plan.
	Version string `json:"version"`

	// Actions are executed in order and reverted in reverse order.
	Actions []*action.Stateful[action.Action] `json:"actions"`

	// Planner produced Actions.
	Planner Planner `json:"planner"`

	receiptPath string
	events      EventPublisher
	selfTester  SelfTester
}

// Option configures runtime behavior of a plan. Options are never persisted.
type Option func(*InstallPlan)

// WithReceiptPath sets where the plan checkpoints itself.
func WithReceiptPath(path string) Option {
	return func(p *InstallPlan) {
		p.receiptPath = path
	}
}

// WithEvents sets the publisher that receives run and step events.
func WithEvents(events EventPublisher) Option {
	return func(p *InstallPlan) {
		p.events = events
	}
}

// WithSelfTester overrides the post-install verification.
func WithSelfTester(tester SelfTester) Option {
	return func(p *InstallPlan) {
		p.selfTester = tester
	}
}

// NewPlan runs the planner's checks and builds a plan at the running engine
// version.
func NewPlan(ctx context.Context, planner Planner, opts ...Option) (*InstallPlan, error) {
	plan := &InstallPlan{
		Version:     Version,
		Planner:     planner,
		receiptPath: DefaultReceiptPath,
	}
	plan.Configure(opts...)

	if err := planner.PlatformCheck(ctx); err != nil {
		return nil, NewError(ErrorKindPlanner, "platform check failed", err).WithOp("platform_check")
	}
	if err := planner.PreInstallCheck(ctx); err != nil {
		return nil, NewError(ErrorKindPlanner, "pre-install check failed", err).WithOp("pre_install_check")
	}

	actions, err := planner.Plan(ctx)
	if err != nil {
		return nil, NewError(ErrorKindPlanner, "failed to plan", err).WithOp("plan")
	}
	plan.Actions = actions
	return plan, nil
}

// Configure applies runtime options.
func (p *InstallPlan) Configure(opts ...Option) {
	for _, opt := range opts {
		opt(p)
	}
	if p.receiptPath == "" {
		p.receiptPath = DefaultReceiptPath
	}
	if user, ok := p.Planner.(ReceiptUser); ok {
		user.UseReceipt(p.receiptPath)
	}
	if p.selfTester == nil {
		if tester, ok := p.Planner.(SelfTester); ok {
			p.selfTester = tester
		}
	}
}

// ReceiptPath returns where the plan checkpoints itself.
func (p *InstallPlan) ReceiptPath() string {
	return p.receiptPath
}

func (p *InstallPlan) plannerTag() string {
	if p.Planner == nil {
		return ""
	}
	return p.Planner.Tag()
}

// Install executes every action in order.
//
// Before each step the cancel signal is polled; when set the receipt is
// written and a cancellation error is returned. The first failing step stops
// the install: the receipt is written best-effort and the failure returned.
// After every step succeeds the receipt is written and the self test runs; a
// self test failure is logged and does not fail the install.
func (p *InstallPlan) Install(ctx context.Context, cancel *CancelSignal) (err error) {
	if err := p.CheckCompatible(); err != nil {
		return err
	}
	if err := p.Planner.PlatformCheck(ctx); err != nil {
		return NewError(ErrorKindPlanner, "platform check failed", err).WithOp("platform_check")
	}
	if err := p.Planner.PreInstallCheck(ctx); err != nil {
		return NewError(ErrorKindPlanner, "pre-install check failed", err).WithOp("pre_install_check")
	}

	ctx, span := tracer.Start(ctx, "install", trace.WithAttributes(
		attribute.String("planner", p.plannerTag()),
		attribute.String("version", p.Version),
		attribute.Int("actions", len(p.Actions)),
	))
	r := p.newRun(StageInstall)
	r.begin(ctx)
	defer func() {
		endSpan(span, err)
		r.finished(ctx, err)
	}()

	for i, step := range p.Actions {
		if cancel.Cancelled() {
			p.writeReceiptBestEffort("cancellation")
			return NewCancelledError(StageInstall)
		}

		if err := p.runStep(ctx, r, i, step, step.TryExecute, action.Completed); err != nil {
			p.writeReceiptBestEffort("a failed action")
			return NewError(ErrorKindAction, "failed to install", err).
				WithOp(string(step.Tag())).
				WithDetail("index", i)
		}
	}

	if err := p.writeReceipt(); err != nil {
		return err
	}

	if p.selfTester != nil {
		if err := p.selfTester.SelfTest(ctx); err != nil {
			log.Warn().Err(err).Msg("Self test failed; the installation is complete but may not be usable")
		}
	}

	return nil
}

// Uninstall reverts every action in reverse order.
//
// The cancel signal is polled before each step; when set the receipt is
// written and a cancellation error is returned. A failing step does not stop
// the uninstall. One failure is returned as is; two or more as *RevertError
// in the order they occurred.
func (p *InstallPlan) Uninstall(ctx context.Context, cancel *CancelSignal) (err error) {
	if err := p.CheckCompatible(); err != nil {
		return err
	}
	if err := p.Planner.PlatformCheck(ctx); err != nil {
		return NewError(ErrorKindPlanner, "platform check failed", err).WithOp("platform_check")
	}
	if err := p.Planner.PreUninstallCheck(ctx); err != nil {
		return NewError(ErrorKindPlanner, "pre-uninstall check failed", err).WithOp("pre_uninstall_check")
	}

	ctx, span := tracer.Start(ctx, "uninstall", trace.WithAttributes(
		attribute.String("planner", p.plannerTag()),
		attribute.String("version", p.Version),
		attribute.Int("actions", len(p.Actions)),
	))
	r := p.newRun(StageUninstall)
	r.begin(ctx)
	defer func() {
		endSpan(span, err)
		r.finished(ctx, err)
	}()

	var errs []error
	for i := len(p.Actions) - 1; i >= 0; i-- {
		step := p.Actions[i]

		if cancel.Cancelled() {
			p.writeReceiptBestEffort("cancellation")
			return NewCancelledError(StageUninstall)
		}

		if err := p.runStep(ctx, r, i, step, step.TryRevert, action.Uncompleted); err != nil {
			log.Error().Err(err).Str("action", string(step.Tag())).Msg("Failed to revert")
			errs = append(errs, NewError(ErrorKindActionRevert, "failed to revert", err).
				WithOp(string(step.Tag())).
				WithDetail("index", i))
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &RevertError{Errs: errs}
	}
}

// runStep performs one transition with its span, events and logs. target is
// the state the transition leads to; a step already there is skipped.
func (p *InstallPlan) runStep(
	ctx context.Context,
	r *run,
	index int,
	step *action.Stateful[action.Action],
	transition func(context.Context) error,
	target action.State,
) error {
	ctx, span := tracer.Start(ctx, "action "+string(step.Tag()), trace.WithAttributes(
		attribute.String("action", string(step.Tag())),
		attribute.Int("index", index),
	))
	defer span.End()

	skipped := step.State() == target
	r.stepStarted(ctx, index, step)

	start := time.Now()
	err := transition(ctx)
	elapsed := time.Since(start)

	outcome := OutcomeSucceeded
	switch {
	case err != nil:
		outcome = OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case skipped:
		outcome = OutcomeSkipped
	default:
		log.Info().
			Str("stage", string(r.stage)).
			Str("action", string(step.Tag())).
			Dur("duration", elapsed).
			Msg(step.Synopsis())
	}

	r.stepFinished(ctx, index, step, outcome, err, elapsed)
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type planJSON struct {
	Version string                            `json:"version"`
	Actions []*action.Stateful[action.Action] `json:"actions"`
	Planner json.RawMessage                   `json:"planner"`
}

// MarshalJSON writes the plan with the planner's tag.
func (p *InstallPlan) MarshalJSON() ([]byte, error) {
	if p.Planner == nil {
		return nil, fmt.Errorf("plan has no planner")
	}
	planner, err := planners.Encode(p.Planner)
	if err != nil {
		return nil, err
	}
	actions := p.Actions
	if actions == nil {
		actions = []*action.Stateful[action.Action]{}
	}
	return json.Marshal(planJSON{Version: p.Version, Actions: actions, Planner: planner})
}

// UnmarshalJSON reads a plan, resolving the planner and actions through
// their registries.
func (p *InstallPlan) UnmarshalJSON(data []byte) error {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Version == "" {
		return fmt.Errorf("plan has no version")
	}
	if len(raw.Planner) == 0 {
		return fmt.Errorf("plan has no planner")
	}

	planner, err := planners.Decode(raw.Planner)
	if err != nil {
		return err
	}

	p.Version = raw.Version
	p.Actions = raw.Actions
	p.Planner = planner
	return nil
}

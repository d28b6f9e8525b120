package telemetry

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/openfroyo/installer/pkg/engine"
)

// Telemetry bundles the logger, the tracer provider, metrics and the event
// publisher that feeds the logger and metrics.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config

	logCloser io.Closer
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates the components and subscribes the logger and metrics
// to the event publisher. The logger and tracer provider become the global
// ones.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	SetGlobal(logger)

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	events := NewEventPublisher()
	events.Subscribe("log", LogEvents(NewComponentLogger(logger, "events")), nil)
	events.Subscribe("metrics", func(_ context.Context, e *engine.Event) error {
		metrics.ObserveEvent(e)
		return nil
	}, FilterByType(engine.EventTypeRunFinished, engine.EventTypeStepFinished))

	return &Telemetry{
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   metrics,
		Events:    events,
		Config:    cfg,
		logCloser: closer,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromContext retrieves the telemetry instance from the context, or nil.
func FromContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes spans, writes the metrics textfile when configured and
// closes the log file. Every step runs; failures are joined.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if path := t.Config.Metrics.TextfilePath; path != "" {
		if err := t.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	if t.logCloser != nil {
		if err := t.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

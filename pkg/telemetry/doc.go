// Package telemetry wires logging, tracing and metrics to the events an
// install plan emits.
//
// The engine publishes run and step events through an engine.EventPublisher.
// EventPublisher fans them out to subscribers; NewTelemetry subscribes two:
//
//  1. a zerolog logger that reports each step
//  2. Metrics, Prometheus counters and histograms by stage, action tag and outcome
//
// Spans are not built from events: the engine starts them itself on the
// global OpenTelemetry provider, which Tracer installs.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Level = "debug"
//	cfg.Tracing.Exporter = "otlp"
//	cfg.Tracing.Endpoint = "collector:4317"
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/froyo.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	plan, err := engine.NewPlan(ctx, planner, engine.WithEvents(tel.Events))
//
// Other subscribers, such as a run history store, are added with
// EventPublisher.Subscribe. Subscribers run synchronously in subscription
// order, so each sees the steps of a run in order.
//
// # Metrics
//
// The installer exits after each run, so metrics are not served over HTTP.
// Shutdown writes them to Config.Metrics.TextfilePath for the node_exporter
// textfile collector:
//
//	froyo_installer_runs_total{kind,status}
//	froyo_installer_run_duration_seconds{kind}
//	froyo_installer_actions_total{stage,tag,outcome}
//	froyo_installer_action_duration_seconds{stage,tag}
//
// # Tracing
//
// Exporters are none (spans are created but dropped), stdout and otlp
// (gRPC).
package telemetry

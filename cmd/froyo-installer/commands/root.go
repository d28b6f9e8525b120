package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/installer/pkg/engine"
	"github.com/openfroyo/installer/pkg/stores"
	"github.com/openfroyo/installer/pkg/telemetry"
)

// globalOptions are the persistent flags and what they set up.
type globalOptions struct {
	logLevel      string
	logFormat     string
	traceExporter string
	traceEndpoint string
	metricsFile   string
	historyDB     string
	receipt       string

	tel *telemetry.Telemetry
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	opts := &globalOptions{}
	rootCmd := newRootCommand(opts, version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	opts.shutdown(ctx)
	return err
}

func newRootCommand(opts *globalOptions, version, commit, buildDate string) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "froyo-installer",
		Short: "Install and uninstall multi-user Nix",
		Long: `froyo-installer installs Nix as a plan of reversible steps.

The plan is saved as a receipt after every run, so an interrupted install can
be resumed and a finished one uninstalled step by step.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	logLevel := "info"
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		logLevel = env
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", logLevel, "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")
	flags.StringVar(&opts.traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	flags.StringVar(&opts.traceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint, host:port")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics to this Prometheus textfile")
	flags.StringVar(&opts.historyDB, "history-db", stores.DefaultPath, "run history database")
	flags.StringVar(&opts.receipt, "receipt", engine.DefaultReceiptPath, "install receipt")

	rootCmd.AddCommand(newPlanCommand(opts))
	rootCmd.AddCommand(newInstallCommand(opts))
	rootCmd.AddCommand(newUninstallCommand(opts))
	rootCmd.AddCommand(newSelfTestCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))

	return rootCmd
}

// setup creates telemetry from the flags and puts it in the command context.
func (o *globalOptions) setup(cmd *cobra.Command) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = engine.Version
	cfg.Logging.Level = o.logLevel
	cfg.Logging.Format = o.logFormat
	cfg.Tracing.Exporter = o.traceExporter
	cfg.Tracing.Endpoint = o.traceEndpoint
	cfg.Metrics.TextfilePath = o.metricsFile

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	o.tel = tel
	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}

// shutdown flushes telemetry whether or not the command failed.
func (o *globalOptions) shutdown(ctx context.Context) {
	if o.tel == nil {
		return
	}
	tel := o.tel
	o.tel = nil

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush telemetry")
	}
}

// events returns the publisher a plan reports to. When the history database
// can be opened a recorder is subscribed; the returned func closes it.
func (o *globalOptions) events(ctx context.Context) (engine.EventPublisher, func()) {
	if o.tel == nil {
		return nil, func() {}
	}
	if o.historyDB == "" {
		return o.tel.Events, func() {}
	}

	store, err := stores.Open(ctx, stores.Config{Path: o.historyDB})
	if err != nil {
		log.Warn().Err(err).Str("path", o.historyDB).Msg("Run history is unavailable")
		return o.tel.Events, func() {}
	}

	events := telemetry.NewEventPublisher()
	events.Subscribe("telemetry", o.tel.Events.Publish, nil)
	events.Subscribe("history", stores.NewRecorder(store).HandleEvent, nil)
	return events, func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run history")
		}
	}
}

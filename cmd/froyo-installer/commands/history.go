package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/installer/pkg/stores"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recorded install and uninstall runs",
		Long: `List recorded runs, newest first. With a run ID, show that run's steps.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := stores.Open(ctx, stores.Config{Path: opts.historyDB})
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				return printRuns(out, runs)
			}

			run, err := store.GetRun(ctx, args[0])
			if errors.Is(err, stores.ErrNotFound) {
				return fmt.Errorf("no run %s in %s", args[0], opts.historyDB)
			}
			if err != nil {
				return err
			}
			steps, err := store.ListSteps(ctx, run.ID)
			if err != nil {
				return err
			}
			return printRun(out, run, steps)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

func printRuns(w io.Writer, runs []*stores.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tKIND\tSTATUS\tSTEPS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Kind, r.Status, r.TotalSteps,
			r.StartedAt.Local().Format(time.DateTime), formatDuration(r.Duration()))
	}
	return tw.Flush()
}

func printRun(w io.Writer, run *stores.Run, steps []*stores.Step) error {
	printLabelValue(w, "Run", run.ID)
	printLabelValue(w, "Kind", run.Kind)
	printLabelValue(w, "Planner", run.Planner)
	printLabelValue(w, "Version", run.Version)
	printLabelValue(w, "Receipt", run.ReceiptPath)
	printLabelValue(w, "Status", run.Status)
	printLabelValue(w, "Started", run.StartedAt.Local().Format(time.DateTime))
	if run.Error != nil {
		printLabelValue(w, "Error", *run.Error)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tACTION\tOUTCOME\tDURATION\tSYNOPSIS")
	for _, s := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Index+1, s.Tag, s.Outcome, formatDuration(s.Duration), s.Synopsis)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range steps {
		if s.Error != nil {
			printError(w, fmt.Sprintf("step %d %s: %s", s.Index+1, s.Tag, *s.Error))
		}
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

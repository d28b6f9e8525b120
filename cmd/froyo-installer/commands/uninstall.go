package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/installer/pkg/engine"
)

type uninstallOptions struct {
	noConfirm bool
	explain   bool
}

func newUninstallCommand(opts *globalOptions) *cobra.Command {
	uninstallOpts := &uninstallOptions{}

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall Nix using the install receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUninstall(cmd, opts, uninstallOpts)
		},
	}

	cmd.Flags().BoolVar(&uninstallOpts.noConfirm, "no-confirm", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&uninstallOpts.explain, "explain", false, "show every setting and step detail")

	return cmd
}

func runUninstall(cmd *cobra.Command, opts *globalOptions, uninstallOpts *uninstallOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if geteuid() != 0 {
		return errors.New("uninstall must be run as root")
	}

	lock, err := engine.AcquireLock(opts.receipt)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("Failed to release receipt lock")
		}
	}()

	events, closeEvents := opts.events(ctx)
	defer closeEvents()

	plan, err := engine.LoadReceipt(opts.receipt, engine.WithEvents(events))
	if err != nil {
		return err
	}
	if err := plan.CheckCompatible(); err != nil {
		return err
	}

	if !uninstallOpts.noConfirm {
		ok, err := confirmPlan(out, plan.DescribeUninstall, uninstallOpts.explain, "Proceed with the uninstall?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Okay, didn't do anything! Bye!")
			return nil
		}
	}

	cancel, stop := watchSignals()
	defer stop()

	if err := plan.Uninstall(ctx, cancel); err != nil {
		if !engine.IsCancelled(err) {
			printError(cmd.ErrOrStderr(), fmt.Sprintf("Uninstall finished with errors; the receipt at %s was kept", opts.receipt))
		}
		return err
	}

	if err := engine.RemoveReceipt(opts.receipt); err != nil {
		return err
	}
	printSuccess(out, "Nix was uninstalled successfully!")
	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/installer/pkg/engine"
	"github.com/openfroyo/installer/pkg/planner"
	"github.com/openfroyo/installer/pkg/policy"
)

// geteuid is replaced in tests.
var geteuid = os.Geteuid

const shellHint = `To get started using Nix, open a new shell or run:

  . /nix/var/nix/profiles/default/etc/profile.d/nix-daemon.sh`

type installOptions struct {
	settings  settingsFlags
	planFile  string
	noConfirm bool
	explain   bool
	policies  []string
}

func newInstallCommand(opts *globalOptions) *cobra.Command {
	installOpts := &installOptions{}

	cmd := &cobra.Command{
		Use:   "install [planner]",
		Short: "Install Nix",
		Long: `Install Nix on this host.

When a receipt from an interrupted install with the same settings exists the
install resumes where it stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := planner.Default
			if len(args) > 0 {
				tag = args[0]
			}
			return runInstall(cmd, opts, installOpts, tag)
		},
	}

	installOpts.settings.register(cmd.Flags())
	cmd.Flags().StringVar(&installOpts.planFile, "plan", "", "install a plan written by 'plan --out'")
	cmd.Flags().BoolVar(&installOpts.noConfirm, "no-confirm", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&installOpts.explain, "explain", false, "show every setting and step detail")
	cmd.Flags().StringSliceVar(&installOpts.policies, "policy", nil, "extra policy file or directory (repeatable)")

	return cmd
}

func runInstall(cmd *cobra.Command, opts *globalOptions, installOpts *installOptions, tag string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if geteuid() != 0 {
		return errors.New("install must be run as root")
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

	plan, err := installOpts.loadPlan(ctx, cmd, opts.receipt, tag)
	if err != nil {
		return err
	}
	events, closeEvents := opts.events(ctx)
	defer closeEvents()
	plan.Configure(engine.WithEvents(events))

	if _, err := checkPolicies(ctx, cmd.ErrOrStderr(), plan, policy.OperationInstall, installOpts.policies); err != nil {
		return err
	}

	if !installOpts.noConfirm {
		ok, err := confirmPlan(out, plan.DescribeInstall, installOpts.explain, "Proceed with the installation?")
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

	err = plan.Install(ctx, cancel)
	if err == nil {
		printSuccess(out, "Nix was installed successfully!")
		fmt.Fprintln(out, shellHint)
		return nil
	}
	if engine.IsCancelled(err) {
		return err
	}

	printError(cmd.ErrOrStderr(), fmt.Sprintf("Installation failed: %s", err))
	if installOpts.noConfirm {
		return err
	}
	return offerRevert(ctx, out, plan, cancel, err)
}

// loadPlan returns the plan to install: the one in planFile, a resumable
// receipt, or a fresh plan from the settings.
func (o *installOptions) loadPlan(ctx context.Context, cmd *cobra.Command, receiptPath, tag string) (*engine.InstallPlan, error) {
	var existing *engine.InstallPlan
	found, err := engine.ReceiptExists(receiptPath)
	if err != nil {
		return nil, err
	}
	if found {
		existing, err = engine.LoadReceipt(receiptPath)
		if err != nil {
			return nil, err
		}
	}

	var plan *engine.InstallPlan
	if o.planFile != "" {
		plan, err = engine.LoadReceipt(o.planFile, engine.WithReceiptPath(receiptPath))
		if err != nil {
			return nil, err
		}
	} else {
		p, err := o.settings.resolvePlanner(ctx, cmd.Flags(), tag, os.LookupEnv)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			same, err := samePlanner(existing.Planner, p)
			if err != nil {
				return nil, err
			}
			if same {
				log.Info().Str("receipt", receiptPath).Msg("Resuming the install recorded in the receipt")
				return existing, nil
			}
			return nil, conflictingReceipt(receiptPath)
		}
		plan, err = engine.NewPlan(ctx, p, engine.WithReceiptPath(receiptPath))
		if err != nil {
			return nil, err
		}
	}

	if existing != nil {
		same, err := samePlanner(existing.Planner, plan.Planner)
		if err != nil {
			return nil, err
		}
		if !same {
			return nil, conflictingReceipt(receiptPath)
		}
		log.Info().Str("receipt", receiptPath).Msg("Resuming the install recorded in the receipt")
		return existing, nil
	}
	return plan, nil
}

func conflictingReceipt(path string) error {
	return engine.NewError(engine.ErrorKindReceipt,
		"a receipt with different settings exists; uninstall first or repeat the same settings", nil).WithPath(path)
}

// samePlanner reports whether a and b are the same planner with the same
// settings.
func samePlanner(a, b engine.Planner) (bool, error) {
	if a == nil || b == nil || a.Tag() != b.Tag() {
		return false, nil
	}
	sa, err := a.Settings()
	if err != nil {
		return false, err
	}
	sb, err := b.Settings()
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(sa, sb), nil
}

// offerRevert asks whether to undo a failed install and does so.
func offerRevert(ctx context.Context, out io.Writer, plan *engine.InstallPlan, cancel *engine.CancelSignal, installErr error) error {
	revert, err := confirm("Revert the partial installation?")
	if err != nil {
		return errors.Join(installErr, err)
	}
	if !revert {
		fmt.Fprintf(out, "The receipt at %s can be used to uninstall later.\n", plan.ReceiptPath())
		return installErr
	}

	if err := plan.Uninstall(ctx, cancel); err != nil {
		printError(out, fmt.Sprintf("Revert failed: %s", err))
		return errors.Join(installErr, err)
	}
	if err := engine.RemoveReceipt(plan.ReceiptPath()); err != nil {
		return errors.Join(installErr, err)
	}
	printSuccess(out, "Partial installation reverted.")
	return installErr
}

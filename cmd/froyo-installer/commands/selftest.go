package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/installer/pkg/engine"
	"github.com/openfroyo/installer/pkg/selftest"
)

func newSelfTestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "self-test",
		Short: "Check that Nix runs from every login shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// The planner in the receipt knows where it installed Nix.
			if plan, err := engine.LoadReceipt(opts.receipt); err == nil {
				if tester, ok := plan.Planner.(engine.SelfTester); ok {
					if err := tester.SelfTest(ctx); err != nil {
						return err
					}
					printSuccess(cmd.OutOrStdout(), "Self test passed.")
					return nil
				}
			} else {
				log.Debug().Err(err).Msg("No usable receipt, testing the default location")
			}

			if err := selftest.Run(ctx, selftest.DefaultOptions()); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Self test passed.")
			return nil
		},
	}
}

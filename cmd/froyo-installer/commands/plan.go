package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/installer/pkg/engine"
	"github.com/openfroyo/installer/pkg/planner"
	"github.com/openfroyo/installer/pkg/policy"
)

type planOptions struct {
	settings settingsFlags
	out      string
	policies []string
}

func newPlanCommand(opts *globalOptions) *cobra.Command {
	planOpts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan [planner]",
		Short: "Print an install plan as JSON",
		Long: `Build an install plan for this host without changing anything.

The plan can be reviewed, edited and later given to 'install --plan'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := planner.Default
			if len(args) > 0 {
				tag = args[0]
			}
			ctx := cmd.Context()

			p, err := planOpts.settings.resolvePlanner(ctx, cmd.Flags(), tag, os.LookupEnv)
			if err != nil {
				return err
			}
			plan, err := engine.NewPlan(ctx, p, engine.WithReceiptPath(opts.receipt))
			if err != nil {
				return err
			}

			// Violations are printed but do not stop a plan from being written.
			if result, err := checkPolicies(ctx, cmd.ErrOrStderr(), plan, policy.OperationPlan, planOpts.policies); result == nil {
				return err
			}

			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode plan: %w", err)
			}
			data = append(data, '\n')

			if planOpts.out == "" || planOpts.out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(planOpts.out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write plan: %w", err)
			}
			printSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Plan written to %s", planOpts.out))
			return nil
		},
	}

	planOpts.settings.register(cmd.Flags())
	cmd.Flags().StringVarP(&planOpts.out, "out", "o", "", "write the plan to a file instead of stdout")
	cmd.Flags().StringSliceVar(&planOpts.policies, "policy", nil, "extra policy file or directory (repeatable)")

	return cmd
}

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/engine"
	"github.com/openfroyo/installer/pkg/policy"
)

// checkPolicies evaluates plan against the built-in policies and the ones
// under paths, and prints every violation. It returns an engine error of
// kind policy when a violation blocks the operation.
func checkPolicies(ctx context.Context, w io.Writer, plan *engine.InstallPlan, op policy.Operation, paths []string) (*policy.Result, error) {
	pe, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		if err := pe.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}

	input, err := policy.NewPlanInput(plan, op)
	if err != nil {
		return nil, err
	}
	result, err := pe.EvaluatePlan(ctx, input)
	if err != nil {
		return nil, err
	}

	for _, errMsg := range result.Errors {
		printWarning(w, errMsg)
	}
	for _, v := range result.Violations {
		line := fmt.Sprintf("[%s] %s: %s", v.Severity, v.Policy, v.Message)
		if v.Severity.Blocks() {
			printError(w, line)
		} else {
			printWarning(w, line)
		}
		if v.Remediation != "" {
			_, _ = dimColor.Fprintf(w, "    %s\n", v.Remediation)
		}
	}

	if !result.Allowed {
		return result, engine.NewError(engine.ErrorKindPolicy, "plan rejected by policy", nil).
			WithOp(string(op)).
			WithDetail("violations", len(result.Violations))
	}
	return result, nil
}

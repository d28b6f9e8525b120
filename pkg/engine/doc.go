// Package engine sequences revertible actions into an install plan and
// persists the plan as a receipt.
//
// # Overview
//
// A Planner inspects the host and produces an ordered list of actions, each
// wrapped in an action.Stateful that records whether its effect holds. An
// InstallPlan owns that list together with the planner and the version of the
// engine that built it:
//
//	plan, err := engine.NewPlan(ctx, planner)
//	if err != nil {
//	    return err
//	}
//	if err := plan.Install(ctx, cancel); err != nil {
//	    if engine.IsCancelled(err) {
//	        // receipt reflects the steps completed so far
//	    }
//	    return err
//	}
//
// # Install and Uninstall
//
// Install runs actions strictly in order and stops at the first failure.
// Uninstall reverts in the exact reverse order and keeps going past failures,
// returning every failure it met. Both poll a CancelSignal between steps; a
// step that has started always runs to completion.
//
// # Receipts
//
// The plan is written to a receipt (by default /nix/receipt.json) after every
// terminal outcome of Install. Receipts are staged in a temporary file beside
// the target and renamed into place, so readers always see a complete plan.
// LoadReceipt rebuilds a plan through the action and planner registries, and
// CheckCompatible refuses plans written by an incompatible engine version.
//
// # Errors
//
// Failures are reported as *Error values classified by Kind:
//
//   - action: an action failed to execute
//   - action_revert: an action failed to revert
//   - cancelled: a cancellation request was honored between steps
//   - incompatible_version: the receipt was written by an incompatible engine
//   - invalid_version: a version could not be parsed
//   - receipt: the receipt could not be read or written
//   - planner: a planner check or planning step failed
//   - policy: a plan was rejected by policy
//
// Use errors.Is(err, engine.ErrCancelled) or IsCancelled to detect
// cancellation. Two or more revert failures are returned as *RevertError.
package engine

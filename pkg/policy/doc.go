// Package policy gates install plans with Open Policy Agent (OPA) rules.
//
// A plan is rendered into a PlanInput (planner, version, settings and the
// ordered actions) and handed to every enabled Rego policy. Each policy
// contributes a `deny` set; its members are strings or objects with
// `message`, optional `severity`, `action` and `remediation`.
//
// # Architecture
//
//  1. Engine - compiles policies once and evaluates them against a plan
//  2. Loader - reads .rego and .json policy files from files or directories
//  3. Built-in policies - non-empty-plan, build-user-range, force-acknowledged
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/froyo/policies"}); err != nil {
//	    return err
//	}
//	input, err := policy.NewPlanInput(plan, policy.OperationInstall)
//	if err != nil {
//	    return err
//	}
//	result, err := eng.EvaluatePlan(ctx, input)
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    // show result.Blocking() and stop
//	}
//
// # Writing policies
//
// A policy file is a Rego module in its own package:
//
//	# Refuse to install without the daemon.
//	# severity: error
//	package froyo.site.daemon
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.settings.init == "none"
//	    msg := "the Nix daemon must be managed by systemd on this site"
//	}
//
// Leading comments become the description; a `# severity:` comment sets the
// default severity of the policy's violations, otherwise warning.
//
// Violations with severity error or critical block the operation.
package policy

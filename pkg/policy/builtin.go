package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		nonEmptyPlanPolicy(),
		buildUserRangePolicy(),
		forceAcknowledgedPolicy(),
	}
}

// nonEmptyPlanPolicy refuses plans with nothing to do.
func nonEmptyPlanPolicy() Policy {
	return Policy{
		Name:        "non-empty-plan",
		Description: "Refuses to install or uninstall with a plan that has no actions",
		Severity:    SeverityError,
		Enabled:     true,
		Metadata:    map[string]any{"source": "builtin"},
		Rego: `package froyo.builtin.nonempty

import rego.v1

deny contains violation if {
	input.operation != "plan"
	count(input.actions) == 0
	violation := {
		"message": sprintf("the %s plan has no actions", [input.planner]),
		"remediation": "plan again on the target host",
	}
}
`,
	}
}

// buildUserRangePolicy keeps build user IDs inside the valid range and away
// from the ranges distributions hand out to people.
func buildUserRangePolicy() Policy {
	return Policy{
		Name:        "build-user-range",
		Description: "Build user IDs must fit in a uid_t and should not overlap regular users",
		Severity:    SeverityError,
		Enabled:     true,
		Metadata:    map[string]any{"source": "builtin"},
		Rego: `package froyo.builtin.buildusers

import rego.v1

# 4294967295 is (uid_t)-1.
max_id := 4294967294

deny contains violation if {
	base := input.settings.nix_build_user_id_base
	n := input.settings.nix_build_user_count
	base + n > max_id
	violation := {
		"message": sprintf("build users %d-%d exceed the largest user ID %d", [base + 1, base + n, max_id]),
		"action": "create_users_and_group",
		"remediation": "lower nix_build_user_id_base or nix_build_user_count",
	}
}

deny contains violation if {
	base := input.settings.nix_build_user_id_base
	base < 1000
	violation := {
		"message": sprintf("build user IDs start at %d, inside the system account range", [base + 1]),
		"severity": "warning",
		"action": "create_users_and_group",
	}
}

deny contains violation if {
	gid := input.settings.nix_build_group_id
	gid < 1000
	violation := {
		"message": sprintf("build group ID %d is inside the system account range", [gid]),
		"severity": "warning",
		"action": "create_users_and_group",
	}
}
`,
	}
}

// forceAcknowledgedPolicy points out that force overwrites files.
func forceAcknowledgedPolicy() Policy {
	return Policy{
		Name:        "force-acknowledged",
		Description: "Warns that force overwrites files and installs over an existing Nix",
		Severity:    SeverityWarning,
		Enabled:     true,
		Metadata:    map[string]any{"source": "builtin"},
		Rego: `package froyo.builtin.force

import rego.v1

deny contains msg if {
	input.operation == "install"
	input.settings.force == true
	msg := "force is set: existing Nix files with unexpected content will be overwritten"
}
`,
	}
}

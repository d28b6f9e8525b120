package engine

import (
	"github.com/Masterminds/semver/v3"
)

// Version is the running engine version, set at build time with
// -ldflags "-X github.com/openfroyo/installer/pkg/engine.Version=...".
var Version = "0.1.0"

// CheckCompatible verifies that the running engine can act on the plan.
// The plan version is read as a caret requirement, so a plan from 0.4.x is
// accepted by 0.4.y but not by 0.5.0, and a plan from 1.2.0 by any 1.x at or
// above 1.2.0.
func (p *InstallPlan) CheckCompatible() error {
	return checkCompatible(Version, p.Version)
}

func checkCompatible(binary, plan string) error {
	current, err := semver.NewVersion(binary)
	if err != nil {
		return NewError(ErrorKindInvalidVersion, "invalid engine version "+binary, err)
	}

	if _, err := semver.NewVersion(plan); err != nil {
		return NewError(ErrorKindInvalidVersion, "invalid plan version "+plan, err)
	}

	constraint, err := semver.NewConstraint("^" + plan)
	if err != nil {
		return NewError(ErrorKindInvalidVersion, "invalid plan version "+plan, err)
	}

	if !constraint.Check(current) {
		return &IncompatibleVersionError{Binary: binary, Plan: plan}
	}
	return nil
}

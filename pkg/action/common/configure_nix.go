package common

import (
	"context"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
)

// ConfigureNix sets up the default profile and the optional configuration,
// shell integration and channel steps.
type ConfigureNix struct {
	SetupDefaultProfile   *action.Stateful[*base.SetupDefaultProfile] `json:"setup_default_profile"`
	PlaceNixConfiguration *action.Stateful[*PlaceNixConfiguration]    `json:"place_nix_configuration,omitempty"`
	ConfigureShellProfile *action.Stateful[*ConfigureShellProfile]    `json:"configure_shell_profile,omitempty"`
	SetupChannels         *action.Stateful[*SetupChannels]            `json:"setup_channels,omitempty"`
}

// PlanConfigureNix assembles the children. Nil optional children are
// skipped.
func PlanConfigureNix(
	setupDefaultProfile *action.Stateful[*base.SetupDefaultProfile],
	placeNixConfiguration *action.Stateful[*PlaceNixConfiguration],
	configureShellProfile *action.Stateful[*ConfigureShellProfile],
	setupChannels *action.Stateful[*SetupChannels],
) *action.Stateful[*ConfigureNix] {
	return action.NewUncompleted(&ConfigureNix{
		SetupDefaultProfile:   setupDefaultProfile,
		PlaceNixConfiguration: placeNixConfiguration,
		ConfigureShellProfile: configureShellProfile,
		SetupChannels:         setupChannels,
	})
}

// Tag implements action.Action.
func (a *ConfigureNix) Tag() action.Tag { return TagConfigureNix }

// Synopsis implements action.Action.
func (a *ConfigureNix) Synopsis() string {
	return "Configure Nix"
}

type step interface {
	TryExecute(ctx context.Context) error
	TryRevert(ctx context.Context) error
	DescribeExecute() []action.Description
	DescribeRevert() []action.Description
}

// steps returns the present children in execution order.
func (a *ConfigureNix) steps() []step {
	var out []step
	if a.PlaceNixConfiguration != nil {
		out = append(out, a.PlaceNixConfiguration)
	}
	out = append(out, a.SetupDefaultProfile)
	if a.ConfigureShellProfile != nil {
		out = append(out, a.ConfigureShellProfile)
	}
	if a.SetupChannels != nil {
		out = append(out, a.SetupChannels)
	}
	return out
}

// ExecuteDescription implements action.Action.
func (a *ConfigureNix) ExecuteDescription() []action.Description {
	var out []action.Description
	for _, s := range a.steps() {
		out = append(out, s.DescribeExecute()...)
	}
	return out
}

// RevertDescription implements action.Action.
func (a *ConfigureNix) RevertDescription() []action.Description {
	var out []action.Description
	steps := a.steps()
	for i := len(steps) - 1; i >= 0; i-- {
		out = append(out, steps[i].DescribeRevert()...)
	}
	return out
}

// Execute implements action.Action.
func (a *ConfigureNix) Execute(ctx context.Context) error {
	for _, s := range a.steps() {
		if err := s.TryExecute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Revert implements action.Action.
func (a *ConfigureNix) Revert(ctx context.Context) error {
	var errs []error
	steps := a.steps()
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].TryRevert(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return action.JoinErrors(errs)
}

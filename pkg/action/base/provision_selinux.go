package base

import (
	"context"
	"fmt"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/command"
)

// ProvisionSelinux installs the Nix SELinux policy module and relabels the
// store.
type ProvisionSelinux struct {
	PolicyPath string `json:"policy_path"`
	Root       string `json:"root"`
}

// PlanProvisionSelinux plans loading the policy at policyPath and relabeling
// root. It is always planned Uncompleted: the loaded module is not probed.
func PlanProvisionSelinux(policyPath, root string) *action.Stateful[*ProvisionSelinux] {
	return action.NewUncompleted(&ProvisionSelinux{PolicyPath: policyPath, Root: root})
}

// Tag implements action.Action.
func (a *ProvisionSelinux) Tag() action.Tag { return TagProvisionSelinux }

// Synopsis implements action.Action.
func (a *ProvisionSelinux) Synopsis() string {
	return fmt.Sprintf("Install an SELinux policy for Nix from `%s`", a.PolicyPath)
}

// ExecuteDescription implements action.Action.
func (a *ProvisionSelinux) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis(),
		fmt.Sprintf("Run `semodule --install %s`", a.PolicyPath),
		fmt.Sprintf("Run `restorecon -FR %s`", a.Root))
}

// RevertDescription implements action.Action.
func (a *ProvisionSelinux) RevertDescription() []action.Description {
	return action.Describe("Remove the SELinux policy for Nix",
		"Run `semodule --remove nix`",
		fmt.Sprintf("Run `restorecon -FR %s`", a.Root))
}

// Execute implements action.Action.
func (a *ProvisionSelinux) Execute(ctx context.Context) error {
	if _, err := command.Run(ctx, command.New("semodule", "--install", a.PolicyPath)); err != nil {
		return err
	}
	_, err := command.Run(ctx, command.New("restorecon", "-FR", a.Root))
	return err
}

// Revert implements action.Action.
func (a *ProvisionSelinux) Revert(ctx context.Context) error {
	if _, err := command.Run(ctx, command.New("semodule", "--remove", "nix")); err != nil {
		return err
	}
	_, err := command.Run(ctx, command.New("restorecon", "-FR", a.Root))
	return err
}

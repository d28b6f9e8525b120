package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
)

// ShellProfileLocations are the directories holding per-shell startup
// snippets.
type ShellProfileLocations struct {
	// ProfileDir receives nix.sh, sourced by POSIX login shells.
	ProfileDir string

	// FishConfDir receives nix.fish when it exists.
	FishConfDir string
}

// DefaultShellProfileLocations returns the system-wide locations.
func DefaultShellProfileLocations() ShellProfileLocations {
	return ShellProfileLocations{
		ProfileDir:  "/etc/profile.d",
		FishConfDir: "/etc/fish/conf.d",
	}
}

// ConfigureShellProfile places the shell snippets that load the daemon
// environment.
type ConfigureShellProfile struct {
	CreateFiles action.Children `json:"create_files"`
}

func shSnippet(profile string) string {
	script := filepath.Join(profile, "etc/profile.d/nix-daemon.sh")
	return fmt.Sprintf("\n# Nix\nif [ -e '%s' ]; then\n  . '%s'\nfi\n# End Nix\n\n", script, script)
}

func fishSnippet(profile string) string {
	script := filepath.Join(profile, "etc/profile.d/nix-daemon.fish")
	return fmt.Sprintf("\n# Nix\nif test -e '%s'\n  . '%s'\nend\n# End Nix\n\n", script, script)
}

// PlanConfigureShellProfile plans nix.sh in ProfileDir and, when FishConfDir
// exists, nix.fish. profile is the default profile the snippets source from.
func PlanConfigureShellProfile(locations ShellProfileLocations, profile string, force bool) (*action.Stateful[*ConfigureShellProfile], error) {
	var files action.Children

	sh, err := base.PlanCreateFile(filepath.Join(locations.ProfileDir, "nix.sh"), "", "", 0o644, shSnippet(profile), force)
	if err != nil {
		return nil, action.Wrap(TagConfigureShellProfile, err)
	}
	files = append(files, action.Erase(sh))

	if info, err := os.Stat(locations.FishConfDir); err == nil && info.IsDir() {
		fish, err := base.PlanCreateFile(filepath.Join(locations.FishConfDir, "nix.fish"), "", "", 0o644, fishSnippet(profile), force)
		if err != nil {
			return nil, action.Wrap(TagConfigureShellProfile, err)
		}
		files = append(files, action.Erase(fish))
	}

	return action.NewUncompleted(&ConfigureShellProfile{CreateFiles: files}), nil
}

// Tag implements action.Action.
func (a *ConfigureShellProfile) Tag() action.Tag { return TagConfigureShellProfile }

// Synopsis implements action.Action.
func (a *ConfigureShellProfile) Synopsis() string {
	return "Configure the shell profiles"
}

// ExecuteDescription implements action.Action.
func (a *ConfigureShellProfile) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis(), action.Explanations(a.CreateFiles.ExecuteDescription())...)
}

// RevertDescription implements action.Action.
func (a *ConfigureShellProfile) RevertDescription() []action.Description {
	return action.Describe("Unconfigure the shell profiles", action.Explanations(a.CreateFiles.RevertDescription())...)
}

// Execute implements action.Action.
func (a *ConfigureShellProfile) Execute(ctx context.Context) error {
	return a.CreateFiles.Execute(ctx)
}

// Revert implements action.Action.
func (a *ConfigureShellProfile) Revert(ctx context.Context) error {
	return a.CreateFiles.Revert(ctx)
}

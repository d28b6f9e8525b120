package common

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
)

// PlaceNixConfiguration writes nix.conf.
type PlaceNixConfiguration struct {
	CreateDirectory *action.Stateful[*base.CreateDirectory] `json:"create_directory"`
	CreateFile      *action.Stateful[*base.CreateFile]      `json:"create_file"`
}

// NixConf renders nix.conf for the build group, an optional CA bundle and
// extra lines appended verbatim.
func NixConf(buildGroup, sslCertFile string, extraConf []string) string {
	var b strings.Builder
	b.WriteString("# Generated by froyo-installer.\n")
	fmt.Fprintf(&b, "build-users-group = %s\n", buildGroup)
	b.WriteString("experimental-features = nix-command flakes\n")
	b.WriteString("always-allow-substitutes = true\n")
	b.WriteString("extra-nix-path = nixpkgs=flake:nixpkgs\n")
	if sslCertFile != "" {
		fmt.Fprintf(&b, "ssl-cert-file = %s\n", sslCertFile)
	}
	for _, line := range extraConf {
		b.WriteString(strings.TrimRight(line, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// PlanPlaceNixConfiguration plans confDir and confDir/nix.conf.
func PlanPlaceNixConfiguration(confDir, buildGroup, sslCertFile string, extraConf []string, force bool) (*action.Stateful[*PlaceNixConfiguration], error) {
	dir, err := base.PlanCreateDirectory(confDir, "", "", 0o755, force)
	if err != nil {
		return nil, action.Wrap(TagPlaceNixConfiguration, err)
	}

	file, err := base.PlanCreateFile(filepath.Join(confDir, "nix.conf"), "", "", 0o664,
		NixConf(buildGroup, sslCertFile, extraConf), force)
	if err != nil {
		return nil, action.Wrap(TagPlaceNixConfiguration, err)
	}

	return action.NewUncompleted(&PlaceNixConfiguration{CreateDirectory: dir, CreateFile: file}), nil
}

// Tag implements action.Action.
func (a *PlaceNixConfiguration) Tag() action.Tag { return TagPlaceNixConfiguration }

// Synopsis implements action.Action.
func (a *PlaceNixConfiguration) Synopsis() string {
	return fmt.Sprintf("Place the Nix configuration in `%s`", a.CreateFile.Inner().Path)
}

// ExecuteDescription implements action.Action.
func (a *PlaceNixConfiguration) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis(),
		"This file is read by the Nix daemon to set its configuration options at runtime.")
}

// RevertDescription implements action.Action.
func (a *PlaceNixConfiguration) RevertDescription() []action.Description {
	return action.Describe(fmt.Sprintf("Remove the Nix configuration in `%s`", a.CreateFile.Inner().Path),
		"This file is read by the Nix daemon to set its configuration options at runtime.")
}

// Execute implements action.Action.
func (a *PlaceNixConfiguration) Execute(ctx context.Context) error {
	if err := a.CreateDirectory.TryExecute(ctx); err != nil {
		return err
	}
	return a.CreateFile.TryExecute(ctx)
}

// Revert implements action.Action.
func (a *PlaceNixConfiguration) Revert(ctx context.Context) error {
	var errs []error
	if err := a.CreateFile.TryRevert(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.CreateDirectory.TryRevert(ctx); err != nil {
		errs = append(errs, err)
	}
	return action.JoinErrors(errs)
}

package common

import (
	"context"
	"path/filepath"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
	"github.com/openfroyo/installer/pkg/command"
)

// DefaultChannel is subscribed as nixpkgs.
const DefaultChannel = "https://nixos.org/channels/nixpkgs-unstable"

// SetupChannels subscribes root to the nixpkgs channel and updates it.
type SetupChannels struct {
	Home          string                             `json:"home"`
	NixChannelBin string                             `json:"nix_channel_bin"`
	CACertFile    string                             `json:"ca_cert_file,omitempty"`
	CreateFile    *action.Stateful[*base.CreateFile] `json:"create_file"`
}

// PlanSetupChannels plans home/.nix-channels and a channel update with the
// nix-channel from the default profile.
func PlanSetupChannels(home, profile string, force bool) (*action.Stateful[*SetupChannels], error) {
	file, err := base.PlanCreateFile(filepath.Join(home, ".nix-channels"), "", "", 0o664,
		DefaultChannel+" nixpkgs\n", force)
	if err != nil {
		return nil, action.Wrap(TagSetupChannels, err)
	}

	return action.NewUncompleted(&SetupChannels{
		Home:          home,
		NixChannelBin: filepath.Join(profile, "bin", "nix-channel"),
		CACertFile:    filepath.Join(profile, "etc/ssl/certs/ca-bundle.crt"),
		CreateFile:    file,
	}), nil
}

// Tag implements action.Action.
func (a *SetupChannels) Tag() action.Tag { return TagSetupChannels }

// Synopsis implements action.Action.
func (a *SetupChannels) Synopsis() string {
	return "Setup the default system channel"
}

// ExecuteDescription implements action.Action.
func (a *SetupChannels) ExecuteDescription() []action.Description {
	explanation := action.Explanations(a.CreateFile.DescribeExecute())
	explanation = append(explanation, "Run `nix-channel --update nixpkgs`")
	return action.Describe(a.Synopsis(), explanation...)
}

// RevertDescription implements action.Action.
func (a *SetupChannels) RevertDescription() []action.Description {
	return action.Describe("Remove system channel configuration")
}

// Execute places the channel list and fetches the channel.
func (a *SetupChannels) Execute(ctx context.Context) error {
	if err := a.CreateFile.TryExecute(ctx); err != nil {
		return err
	}

	cmd := command.New(a.NixChannelBin, "--update", "nixpkgs").WithEnv("HOME", a.Home)
	if a.CACertFile != "" {
		cmd.WithEnv("NIX_SSL_CERT_FILE", a.CACertFile)
	}
	_, err := command.Run(ctx, cmd)
	return err
}

// Revert removes the channel list. The fetched channel leaves with /nix.
func (a *SetupChannels) Revert(ctx context.Context) error {
	return a.CreateFile.TryRevert(ctx)
}

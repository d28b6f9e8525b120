// Package common composes the leaf actions into the steps of a Linux
// install: the /nix tree, Nix itself, build users, configuration and shell
// integration.
package common

import (
	"github.com/openfroyo/installer/pkg/action"
)

// Tags of the composite actions.
const (
	TagCreateNixTree         action.Tag = "create_nix_tree"
	TagProvisionNix          action.Tag = "provision_nix"
	TagCreateUsersAndGroup   action.Tag = "create_users_and_group"
	TagPlaceNixConfiguration action.Tag = "place_nix_configuration"
	TagConfigureShellProfile action.Tag = "configure_shell_profile"
	TagSetupChannels         action.Tag = "setup_channels"
	TagConfigureNix          action.Tag = "configure_nix"
)

func init() {
	action.Register(TagCreateNixTree, func() action.Action { return &CreateNixTree{} })
	action.Register(TagProvisionNix, func() action.Action { return &ProvisionNix{} })
	action.Register(TagCreateUsersAndGroup, func() action.Action { return &CreateUsersAndGroup{} })
	action.Register(TagPlaceNixConfiguration, func() action.Action { return &PlaceNixConfiguration{} })
	action.Register(TagConfigureShellProfile, func() action.Action { return &ConfigureShellProfile{} })
	action.Register(TagSetupChannels, func() action.Action { return &SetupChannels{} })
	action.Register(TagConfigureNix, func() action.Action { return &ConfigureNix{} })
}

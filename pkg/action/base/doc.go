// Package base contains the leaf actions of an installation: directories,
// files, users and groups, fetching and unpacking the Nix archive, the
// default profile, SELinux and the init service.
//
// Each action has a Plan constructor that inspects the host and returns a
// wrapper already marked Completed when the effect is present. Every external
// command goes through the command.Runner carried by the context.
package base

import (
	"github.com/openfroyo/installer/pkg/action"
)

// Tags of the leaf actions. They are persisted in receipts.
const (
	TagCreateDirectory       action.Tag = "create_directory"
	TagCreateFile            action.Tag = "create_file"
	TagRemoveDirectory       action.Tag = "remove_directory"
	TagCreateGroup           action.Tag = "create_group"
	TagCreateUser            action.Tag = "create_user"
	TagFetchAndUnpack        action.Tag = "fetch_and_unpack_nix"
	TagMoveUnpacked          action.Tag = "move_unpacked_nix"
	TagSetupDefaultProfile   action.Tag = "setup_default_profile"
	TagSystemctlDaemonReload action.Tag = "systemctl_daemon_reload"
	TagProvisionSelinux      action.Tag = "provision_selinux"
	TagConfigureInitService  action.Tag = "configure_init_service"
)

func init() {
	action.Register(TagCreateDirectory, func() action.Action { return &CreateDirectory{} })
	action.Register(TagCreateFile, func() action.Action { return &CreateFile{} })
	action.Register(TagRemoveDirectory, func() action.Action { return &RemoveDirectory{} })
	action.Register(TagCreateGroup, func() action.Action { return &CreateGroup{} })
	action.Register(TagCreateUser, func() action.Action { return &CreateUser{} })
	action.Register(TagFetchAndUnpack, func() action.Action { return &FetchAndUnpack{} })
	action.Register(TagMoveUnpacked, func() action.Action { return &MoveUnpacked{} })
	action.Register(TagSetupDefaultProfile, func() action.Action { return &SetupDefaultProfile{} })
	action.Register(TagSystemctlDaemonReload, func() action.Action { return &SystemctlDaemonReload{} })
	action.Register(TagProvisionSelinux, func() action.Action { return &ProvisionSelinux{} })
	action.Register(TagConfigureInitService, func() action.Action { return &ConfigureInitService{} })
}

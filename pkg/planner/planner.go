// Package planner holds the planners that turn settings and the state of a
// host into an install plan.
package planner

import (
	"context"
	"fmt"

	"github.com/openfroyo/installer/pkg/engine"
)

func init() {
	engine.RegisterPlanner(TagLinux, func() engine.Planner { return &Linux{} })
}

// Default is the planner used when none is named.
const Default = TagLinux

// Configurable is a planner whose settings can be loaded from files and the
// environment.
type Configurable interface {
	engine.Planner

	// Validate checks every setting.
	Validate() error

	// Schema returns the CUE schema settings files are checked against.
	Schema() string
}

// New returns the planner registered as tag with defaults detected on this
// host.
func New(ctx context.Context, tag string) (Configurable, error) {
	switch tag {
	case TagLinux, "":
		return NewLinux(ctx), nil
	default:
		return nil, fmt.Errorf("unknown planner %q (available: %v)", tag, engine.Planners())
	}
}

// Schema implements Configurable.
func (p *Linux) Schema() string {
	return LinuxSchema
}

// LinuxSchema describes the keys a settings file for the linux planner may
// set.
const LinuxSchema = `
#Settings: {
	modify_profile?:         bool
	nix_build_group_name?:   string & != ""
	nix_build_group_id?:     int & >=0 & <=4294967295
	nix_build_user_prefix?:  string & != ""
	nix_build_user_count?:   int & >=1 & <=4294967295
	nix_build_user_id_base?: int & >=0 & <=4294967295
	nix_package_url?:        string & != ""
	ssl_cert_file?:          string
	extra_conf?: [...string]
	force?:         bool
	skip_nix_conf?: bool
	add_channel?:   bool
	init?:          "none" | "systemd"
	start_daemon?:  bool
	layout?: {
		root?:           string
		conf_dir?:       string
		profile_dir?:    string
		fish_conf_dir?:  string
		root_home?:      string
		unit_dir?:       string
		tmpfiles_dir?:   string
		selinux_policy?: string
	}
}
#Settings
`

package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action/base"
	"github.com/openfroyo/installer/pkg/command"
	"github.com/openfroyo/installer/pkg/config"
)

// NixVersion is the release installed by default.
const NixVersion = "2.24.10"

// CommonSettings apply to every planner.
type CommonSettings struct {
	// ModifyProfile adds shell snippets that load Nix into login shells.
	ModifyProfile bool `json:"modify_profile" yaml:"modify_profile"`

	NixBuildGroupName  string `json:"nix_build_group_name" yaml:"nix_build_group_name" validate:"required"`
	NixBuildGroupID    uint32 `json:"nix_build_group_id" yaml:"nix_build_group_id"`
	NixBuildUserPrefix string `json:"nix_build_user_prefix" yaml:"nix_build_user_prefix" validate:"required"`
	NixBuildUserCount  uint32 `json:"nix_build_user_count" yaml:"nix_build_user_count" validate:"min=1"`
	NixBuildUserIDBase uint32 `json:"nix_build_user_id_base" yaml:"nix_build_user_id_base"`

	// NixPackageURL is a path, http(s) or sftp URL of the Nix archive.
	NixPackageURL string `json:"nix_package_url" yaml:"nix_package_url" validate:"required"`

	// SSLCertFile is an extra CA bundle for downloads and the daemon.
	SSLCertFile string `json:"ssl_cert_file,omitempty" yaml:"ssl_cert_file,omitempty" validate:"omitempty,file"`

	// ExtraConf lines are appended to nix.conf.
	ExtraConf []string `json:"extra_conf" yaml:"extra_conf"`

	// Force overwrites files with unexpected content and allows installing
	// over an existing Nix.
	Force bool `json:"force" yaml:"force"`

	// SkipNixConf leaves nix.conf alone.
	SkipNixConf bool `json:"skip_nix_conf" yaml:"skip_nix_conf"`

	// AddChannel subscribes root to nixpkgs.
	AddChannel bool `json:"add_channel" yaml:"add_channel"`
}

// DefaultCommonSettings returns the defaults for the running architecture.
func DefaultCommonSettings() CommonSettings {
	return CommonSettings{
		ModifyProfile:      true,
		NixBuildGroupName:  "nixbld",
		NixBuildGroupID:    30000,
		NixBuildUserPrefix: "nixbld",
		NixBuildUserCount:  32,
		NixBuildUserIDBase: 30000,
		NixPackageURL:      DefaultPackageURL(runtime.GOARCH),
		ExtraConf:          []string{},
	}
}

// DefaultPackageURL returns the release tarball for a Go architecture name.
func DefaultPackageURL(goarch string) string {
	system := map[string]string{
		"amd64": "x86_64-linux",
		"arm64": "aarch64-linux",
		"386":   "i686-linux",
	}[goarch]
	if system == "" {
		system = goarch + "-linux"
	}
	return fmt.Sprintf("https://releases.nixos.org/nix/nix-%s/nix-%s-%s.tar.xz", NixVersion, NixVersion, system)
}

// Validate checks the struct tags and the rules between settings.
func (s *CommonSettings) Validate() error {
	var errs config.ValidationErrors
	if err := config.Validate(s); err != nil {
		var verrs config.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		errs = append(errs, verrs...)
	}
	if s.SkipNixConf && len(s.ExtraConf) > 0 {
		errs = append(errs, config.ValidationError{Path: "extra_conf", Message: "cannot be used with skip_nix_conf"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// InitSettings choose how the daemon is run.
type InitSettings struct {
	Init base.InitSystem `json:"init" yaml:"init" validate:"oneof=none systemd"`

	// StartDaemon starts the socket right after installing.
	StartDaemon bool `json:"start_daemon" yaml:"start_daemon"`
}

// systemdRuntimeDir exists while systemd is PID 1.
var systemdRuntimeDir = "/run/systemd/system"

// DefaultInitSettings detects systemd: its runtime directory must exist and
// `systemctl status` must succeed.
func DefaultInitSettings(ctx context.Context) InitSettings {
	return InitSettings{Init: DetectInit(ctx), StartDaemon: true}
}

// DetectInit returns the init system the daemon can be configured with.
func DetectInit(ctx context.Context) base.InitSystem {
	if info, err := os.Stat(systemdRuntimeDir); err != nil || !info.IsDir() {
		return base.InitNone
	}
	if _, ok := command.Which(ctx, "systemctl"); !ok {
		return base.InitNone
	}
	if _, err := command.Run(ctx, command.New("systemctl", "status")); err != nil {
		log.Debug().Err(err).Msg("systemctl status failed, not using systemd")
		return base.InitNone
	}
	return base.InitSystemd
}

package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/openfroyo/installer/pkg/action/base"
	"github.com/openfroyo/installer/pkg/config"
	"github.com/openfroyo/installer/pkg/planner"
)

// settingsFlags hold planner settings given on the command line. Only flags
// the user changed override the file and the environment.
type settingsFlags struct {
	configFile string

	common planner.CommonSettings

	noModifyProfile bool
	noStartDaemon   bool
	initSystem      string
}

func (s *settingsFlags) register(flags *pflag.FlagSet) {
	defaults := planner.DefaultCommonSettings()

	flags.StringVar(&s.configFile, "config", "", "settings file (YAML, JSON, CUE or Starlark)")

	flags.StringVar(&s.common.NixBuildGroupName, "nix-build-group-name", defaults.NixBuildGroupName, "build group name")
	flags.Uint32Var(&s.common.NixBuildGroupID, "nix-build-group-id", defaults.NixBuildGroupID, "build group id")
	flags.StringVar(&s.common.NixBuildUserPrefix, "nix-build-user-prefix", defaults.NixBuildUserPrefix, "build user name prefix")
	flags.Uint32Var(&s.common.NixBuildUserCount, "nix-build-user-count", defaults.NixBuildUserCount, "number of build users")
	flags.Uint32Var(&s.common.NixBuildUserIDBase, "nix-build-user-id-base", defaults.NixBuildUserIDBase, "first build user id minus one")
	flags.StringVar(&s.common.NixPackageURL, "nix-package-url", defaults.NixPackageURL, "Nix archive: a path, http(s) or sftp URL")
	flags.StringVar(&s.common.SSLCertFile, "ssl-cert-file", "", "extra CA bundle for downloads and the daemon")
	flags.StringArrayVar(&s.common.ExtraConf, "extra-conf", nil, "line appended to nix.conf (repeatable)")
	flags.BoolVar(&s.common.Force, "force", false, "overwrite unexpected files and install over an existing Nix")
	flags.BoolVar(&s.common.SkipNixConf, "skip-nix-conf", false, "leave nix.conf alone")
	flags.BoolVar(&s.noModifyProfile, "no-modify-profile", false, "do not add Nix to shell profiles")
	flags.BoolVar(&s.common.AddChannel, "add-channel", false, "subscribe root to the nixpkgs channel")

	flags.StringVar(&s.initSystem, "init", "", "init system for the daemon (none, systemd); detected by default")
	flags.BoolVar(&s.noStartDaemon, "no-start-daemon", false, "configure the daemon without starting it")
}

// apply copies changed flags onto the planner settings.
func (s *settingsFlags) apply(flags *pflag.FlagSet, common *planner.CommonSettings, initSettings *planner.InitSettings) {
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("nix-build-group-name") {
		common.NixBuildGroupName = s.common.NixBuildGroupName
	}
	if changed("nix-build-group-id") {
		common.NixBuildGroupID = s.common.NixBuildGroupID
	}
	if changed("nix-build-user-prefix") {
		common.NixBuildUserPrefix = s.common.NixBuildUserPrefix
	}
	if changed("nix-build-user-count") {
		common.NixBuildUserCount = s.common.NixBuildUserCount
	}
	if changed("nix-build-user-id-base") {
		common.NixBuildUserIDBase = s.common.NixBuildUserIDBase
	}
	if changed("nix-package-url") {
		common.NixPackageURL = s.common.NixPackageURL
	}
	if changed("ssl-cert-file") {
		common.SSLCertFile = s.common.SSLCertFile
	}
	if changed("extra-conf") {
		common.ExtraConf = s.common.ExtraConf
	}
	if changed("force") {
		common.Force = s.common.Force
	}
	if changed("skip-nix-conf") {
		common.SkipNixConf = s.common.SkipNixConf
	}
	if changed("no-modify-profile") {
		common.ModifyProfile = !s.noModifyProfile
	}
	if changed("add-channel") {
		common.AddChannel = s.common.AddChannel
	}
	if changed("init") {
		initSettings.Init = base.InitSystem(s.initSystem)
	}
	if changed("no-start-daemon") {
		initSettings.StartDaemon = !s.noStartDaemon
	}
}

// resolvePlanner builds the named planner. Settings come from, in rising
// precedence, host defaults, the settings file, NIX_INSTALLER_* variables and
// flags.
func (s *settingsFlags) resolvePlanner(ctx context.Context, flags *pflag.FlagSet, tag string, lookup func(string) (string, bool)) (planner.Configurable, error) {
	p, err := planner.New(ctx, tag)
	if err != nil {
		return nil, err
	}

	if s.configFile != "" {
		loader := config.NewLoader()
		if err := loader.Schemas().RegisterSchema(p.Tag(), p.Schema()); err != nil {
			return nil, fmt.Errorf("failed to register %s settings schema: %w", p.Tag(), err)
		}
		if err := loader.Load(ctx, s.configFile, p.Tag(), p); err != nil {
			return nil, fmt.Errorf("failed to load settings from %s: %w", s.configFile, err)
		}
	}

	applied, err := config.ApplyEnv(p, config.EnvPrefix, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	if len(applied) > 0 {
		log.Debug().Strs("variables", applied).Msg("Applied settings from the environment")
	}

	if linux, ok := p.(*planner.Linux); ok {
		s.apply(flags, &linux.CommonSettings, &linux.InitSettings)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return p, nil
}

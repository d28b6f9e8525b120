package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
	"github.com/openfroyo/installer/pkg/action/common"
	"github.com/openfroyo/installer/pkg/command"
	"github.com/openfroyo/installer/pkg/config"
	"github.com/openfroyo/installer/pkg/selftest"
)

// TagLinux names the multi-user Linux planner.
const TagLinux = "linux"

var (
	goos   = runtime.GOOS
	goarch = runtime.GOARCH
)

var supportedArches = map[string]bool{"amd64": true, "arm64": true, "386": true}

// Layout is where the planner puts things. Only tests move it.
type Layout struct {
	Root          string `json:"root" validate:"required"`
	ConfDir       string `json:"conf_dir" validate:"required"`
	ProfileDir    string `json:"profile_dir" validate:"required"`
	FishConfDir   string `json:"fish_conf_dir"`
	RootHome      string `json:"root_home" validate:"required"`
	UnitDir       string `json:"unit_dir" validate:"required"`
	TmpfilesDir   string `json:"tmpfiles_dir" validate:"required"`
	SelinuxPolicy string `json:"selinux_policy"`
}

// DefaultLayout returns the system locations.
func DefaultLayout() Layout {
	shell := common.DefaultShellProfileLocations()
	return Layout{
		Root:          "/nix",
		ConfDir:       "/etc/nix",
		ProfileDir:    shell.ProfileDir,
		FishConfDir:   shell.FishConfDir,
		RootHome:      "/root",
		UnitDir:       "/etc/systemd/system",
		TmpfilesDir:   "/etc/tmpfiles.d",
		SelinuxPolicy: "/usr/share/selinux/packages/nix/nix.pp",
	}
}

func (l Layout) scratchDir() string  { return filepath.Join(l.Root, "temp-install-dir") }
func (l Layout) storeDir() string    { return filepath.Join(l.Root, "store") }
func (l Layout) stateDir() string    { return filepath.Join(l.Root, "var", "nix") }
func (l Layout) profilePath() string { return filepath.Join(l.stateDir(), "profiles", "default") }
func (l Layout) receiptPath() string { return filepath.Join(l.Root, "receipt.json") }
func (l Layout) daemonSocket() string {
	return filepath.Join(l.stateDir(), "daemon-socket", "socket")
}

// Linux installs a multi-user Nix with a daemon on Linux.
type Linux struct {
	CommonSettings
	InitSettings
	Layout Layout `json:"layout"`

	// defaultInit is the detected init system ConfiguredSettings compares
	// against. Empty after decoding a receipt.
	defaultInit base.InitSystem
	// receipt is where the engine checkpoints the plan.
	receipt string
}

// NewLinux returns the planner with defaults detected on this host.
func NewLinux(ctx context.Context) *Linux {
	initSettings := DefaultInitSettings(ctx)
	return &Linux{
		CommonSettings: DefaultCommonSettings(),
		InitSettings:   initSettings,
		Layout:         DefaultLayout(),
		defaultInit:    initSettings.Init,
	}
}

// Tag implements engine.Planner.
func (p *Linux) Tag() string { return TagLinux }

// UseReceipt implements engine.ReceiptUser.
func (p *Linux) UseReceipt(path string) { p.receipt = path }

func (p *Linux) receiptPath() string {
	if p.receipt != "" {
		return p.receipt
	}
	return p.Layout.receiptPath()
}

// Validate checks every setting.
func (p *Linux) Validate() error {
	var errs config.ValidationErrors
	checks := []struct {
		prefix string
		err    error
	}{
		{"", p.CommonSettings.Validate()},
		{"", config.Validate(&p.InitSettings)},
		{"layout.", config.Validate(&p.Layout)},
	}
	for _, check := range checks {
		if check.err == nil {
			continue
		}
		var verrs config.ValidationErrors
		if !errors.As(check.err, &verrs) {
			return check.err
		}
		for _, verr := range verrs {
			verr.Path = check.prefix + verr.Path
			errs = append(errs, verr)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// PlatformCheck implements engine.Planner.
func (p *Linux) PlatformCheck(context.Context) error {
	if goos != "linux" || !supportedArches[goarch] {
		return fmt.Errorf("unsupported platform %s/%s: the %s planner supports linux on amd64, arm64 and 386", goos, goarch, TagLinux)
	}
	return nil
}

// PreInstallCheck implements engine.Planner.
func (p *Linux) PreInstallCheck(ctx context.Context) error {
	if err := p.Validate(); err != nil {
		return err
	}

	// A Nix with a receipt next to it is an install of ours being resumed.
	nix := filepath.Join(p.Layout.profilePath(), "bin", "nix")
	if _, err := os.Stat(nix); err == nil && !p.Force && !exists(p.receiptPath()) {
		return fmt.Errorf("nix is already installed at %s; uninstall it first or set force", nix)
	}

	if p.Init == base.InitSystemd {
		if _, ok := command.Which(ctx, "systemctl"); !ok {
			return errors.New("init is systemd but systemctl was not found")
		}
	}

	if selinuxEnforcing(ctx) {
		if _, err := os.Stat(p.Layout.SelinuxPolicy); err != nil {
			return fmt.Errorf("SELinux is enforcing and the Nix policy is unavailable: %w", err)
		}
	}
	return nil
}

// PreUninstallCheck implements engine.Planner.
func (p *Linux) PreUninstallCheck(context.Context) error {
	return nil
}

// Plan implements engine.Planner.
func (p *Linux) Plan(ctx context.Context) ([]*action.Stateful[action.Action], error) {
	l := p.Layout
	var actions []*action.Stateful[action.Action]

	root, err := base.PlanCreateDirectory(l.Root, "", "", 0o755, true)
	if err != nil {
		return nil, err
	}
	actions = append(actions, action.Erase(root))

	if selinuxEnforcing(ctx) {
		actions = append(actions, action.Erase(base.PlanProvisionSelinux(l.SelinuxPolicy, l.Root)))
	}

	provision, err := common.PlanProvisionNix(common.ProvisionOptions{
		Root:         l.Root,
		ScratchDir:   l.scratchDir(),
		PackageURL:   p.NixPackageURL,
		SSLCertFile:  p.SSLCertFile,
		BuildGroupID: p.NixBuildGroupID,
	})
	if err != nil {
		return nil, err
	}
	actions = append(actions, action.Erase(provision))

	users, err := common.PlanCreateUsersAndGroup(ctx, common.UsersOptions{
		GroupName:  p.NixBuildGroupName,
		GroupID:    p.NixBuildGroupID,
		UserPrefix: p.NixBuildUserPrefix,
		UserCount:  p.NixBuildUserCount,
		UserIDBase: p.NixBuildUserIDBase,
	})
	if err != nil {
		return nil, err
	}
	actions = append(actions, action.Erase(users))

	configure, err := p.planConfigureNix()
	if err != nil {
		return nil, err
	}
	actions = append(actions, action.Erase(configure))

	profile := l.profilePath()
	initService, err := base.PlanConfigureInitService(ctx, &base.ConfigureInitService{
		Init:         p.Init,
		StartDaemon:  p.StartDaemon,
		ServiceSrc:   filepath.Join(profile, "lib/systemd/system/nix-daemon.service"),
		ServiceDest:  filepath.Join(l.UnitDir, "nix-daemon.service"),
		SocketSrc:    filepath.Join(profile, "lib/systemd/system/nix-daemon.socket"),
		SocketDest:   filepath.Join(l.UnitDir, "nix-daemon.socket"),
		TmpfilesSrc:  filepath.Join(profile, "lib/tmpfiles.d/nix-daemon.conf"),
		TmpfilesDest: filepath.Join(l.TmpfilesDir, "nix-daemon.conf"),
		StateDir:     l.stateDir(),
	})
	if err != nil {
		return nil, err
	}
	actions = append(actions, action.Erase(initService))

	actions = append(actions, action.Erase(base.PlanRemoveDirectory(l.scratchDir())))
	return actions, nil
}

func (p *Linux) planConfigureNix() (*action.Stateful[*common.ConfigureNix], error) {
	l := p.Layout
	profile := l.profilePath()

	var conf *action.Stateful[*common.PlaceNixConfiguration]
	if !p.SkipNixConf {
		var err error
		conf, err = common.PlanPlaceNixConfiguration(l.ConfDir, p.NixBuildGroupName, p.SSLCertFile, p.ExtraConf, p.Force)
		if err != nil {
			return nil, err
		}
	}

	var shell *action.Stateful[*common.ConfigureShellProfile]
	if p.ModifyProfile {
		var err error
		shell, err = common.PlanConfigureShellProfile(common.ShellProfileLocations{
			ProfileDir:  l.ProfileDir,
			FishConfDir: l.FishConfDir,
		}, profile, p.Force)
		if err != nil {
			return nil, err
		}
	}

	var channels *action.Stateful[*common.SetupChannels]
	if p.AddChannel {
		var err error
		channels, err = common.PlanSetupChannels(l.RootHome, profile, p.Force)
		if err != nil {
			return nil, err
		}
	}

	defaultProfile := base.PlanSetupDefaultProfile(l.scratchDir(), profile, l.storeDir())
	return common.PlanConfigureNix(defaultProfile, conf, shell, channels), nil
}

// Settings implements engine.Planner.
func (p *Linux) Settings() (map[string]any, error) {
	return settingsMap(p.CommonSettings, p.InitSettings)
}

// ConfiguredSettings implements engine.Planner.
func (p *Linux) ConfiguredSettings() (map[string]any, error) {
	defaultInit := p.defaultInit
	if defaultInit == "" {
		defaultInit = DetectInit(context.Background())
	}

	defaults, err := settingsMap(DefaultCommonSettings(), InitSettings{Init: defaultInit, StartDaemon: true})
	if err != nil {
		return nil, err
	}
	current, err := p.Settings()
	if err != nil {
		return nil, err
	}

	configured := make(map[string]any)
	for key, value := range current {
		if !reflect.DeepEqual(defaults[key], value) {
			configured[key] = value
		}
	}
	return configured, nil
}

// SelfTest implements engine.SelfTester.
func (p *Linux) SelfTest(ctx context.Context) error {
	opts := selftest.Options{
		SocketTimeout: 10 * time.Second,
		NixBin:        filepath.Join(p.Layout.profilePath(), "bin", "nix"),
		Shells:        selftest.DefaultShells,
	}
	if p.Init == base.InitSystemd && p.StartDaemon {
		opts.DaemonSocket = p.Layout.daemonSocket()
	}
	return selftest.Run(ctx, opts)
}

// settingsMap flattens settings structs into one map keyed by JSON name.
func settingsMap(parts ...any) (map[string]any, error) {
	out := make(map[string]any)
	for _, part := range parts {
		data, err := json.Marshal(part)
		if err != nil {
			return nil, fmt.Errorf("failed to encode settings: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// selinuxEnforcing reports whether getenforce prints Enforcing.
func selinuxEnforcing(ctx context.Context) bool {
	if _, ok := command.Which(ctx, "getenforce"); !ok {
		return false
	}
	result, err := command.Run(ctx, command.New("getenforce"))
	if err != nil {
		log.Debug().Err(err).Msg("getenforce failed, assuming SELinux is not enforcing")
		return false
	}
	return strings.TrimSpace(result.Stdout) == "Enforcing"
}

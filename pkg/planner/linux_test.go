package planner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
	"github.com/openfroyo/installer/pkg/action/common"
	"github.com/openfroyo/installer/pkg/command"
	"github.com/openfroyo/installer/pkg/command/commandtest"
	"github.com/openfroyo/installer/pkg/config"
	"github.com/openfroyo/installer/pkg/engine"
)

func testLayout(t *testing.T) Layout {
	t.Helper()
	dir := t.TempDir()
	return Layout{
		Root:          filepath.Join(dir, "nix"),
		ConfDir:       filepath.Join(dir, "etc", "nix"),
		ProfileDir:    filepath.Join(dir, "etc", "profile.d"),
		FishConfDir:   filepath.Join(dir, "etc", "fish", "conf.d"),
		RootHome:      filepath.Join(dir, "root"),
		UnitDir:       filepath.Join(dir, "etc", "systemd", "system"),
		TmpfilesDir:   filepath.Join(dir, "etc", "tmpfiles.d"),
		SelinuxPolicy: filepath.Join(dir, "nix.pp"),
	}
}

func testPlanner(t *testing.T) *Linux {
	t.Helper()
	settings := DefaultCommonSettings()
	settings.NixBuildGroupName = "froyo-test-nixbld"
	settings.NixBuildUserPrefix = "froyo-test-nixbld"
	settings.NixBuildUserCount = 2
	return &Linux{
		CommonSettings: settings,
		InitSettings:   InitSettings{Init: base.InitNone, StartDaemon: true},
		Layout:         testLayout(t),
		defaultInit:    base.InitNone,
	}
}

func accountsRunner() *commandtest.FakeRunner {
	return &commandtest.FakeRunner{Available: map[string]bool{
		"groupadd": true, "groupdel": true, "useradd": true, "userdel": true, "sh": true,
	}}
}

func tags(actions []*action.Stateful[action.Action]) []action.Tag {
	out := make([]action.Tag, len(actions))
	for i, a := range actions {
		out[i] = a.Tag()
	}
	return out
}

func TestPlanOrder(t *testing.T) {
	ctx := accountsRunner().Context(context.Background())

	actions, err := testPlanner(t).Plan(ctx)
	require.NoError(t, err)

	assert.Equal(t, []action.Tag{
		base.TagCreateDirectory,
		common.TagProvisionNix,
		common.TagCreateUsersAndGroup,
		common.TagConfigureNix,
		base.TagConfigureInitService,
		base.TagRemoveDirectory,
	}, tags(actions))
}

func TestPlanProvisionsSelinuxWhenEnforcing(t *testing.T) {
	runner := accountsRunner()
	runner.Available["getenforce"] = true
	runner.Handler = func(cmd *command.Cmd) (*command.Result, error) {
		if cmd.Name == "getenforce" {
			return &command.Result{Stdout: "Enforcing\n"}, nil
		}
		return &command.Result{}, nil
	}
	ctx := runner.Context(context.Background())

	p := testPlanner(t)
	actions, err := p.Plan(ctx)
	require.NoError(t, err)
	require.Greater(t, len(actions), 2)
	assert.Equal(t, base.TagProvisionSelinux, actions[1].Tag())

	err = p.PreInstallCheck(ctx)
	require.Error(t, err, "policy file is missing")
	require.NoError(t, os.WriteFile(p.Layout.SelinuxPolicy, []byte("policy"), 0o644))
	assert.NoError(t, p.PreInstallCheck(ctx))
}

func configureNix(t *testing.T, actions []*action.Stateful[action.Action]) *common.ConfigureNix {
	t.Helper()
	for _, a := range actions {
		if c, ok := a.Inner().(*common.ConfigureNix); ok {
			return c
		}
	}
	t.Fatal("plan has no configure_nix")
	return nil
}

func TestPlanOptionalSteps(t *testing.T) {
	ctx := accountsRunner().Context(context.Background())

	p := testPlanner(t)
	c := configureNix(t, mustPlan(t, ctx, p))
	assert.NotNil(t, c.PlaceNixConfiguration)
	assert.NotNil(t, c.ConfigureShellProfile)
	assert.Nil(t, c.SetupChannels)

	p.SkipNixConf = true
	p.ModifyProfile = false
	p.AddChannel = true
	c = configureNix(t, mustPlan(t, ctx, p))
	assert.Nil(t, c.PlaceNixConfiguration)
	assert.Nil(t, c.ConfigureShellProfile)
	require.NotNil(t, c.SetupChannels)
	assert.Equal(t, p.Layout.RootHome, c.SetupChannels.Inner().Home)
}

func mustPlan(t *testing.T, ctx context.Context, p *Linux) []*action.Stateful[action.Action] {
	t.Helper()
	actions, err := p.Plan(ctx)
	require.NoError(t, err)
	return actions
}

func TestPlanRejectsForeignNixConf(t *testing.T) {
	ctx := accountsRunner().Context(context.Background())
	p := testPlanner(t)

	require.NoError(t, os.MkdirAll(p.Layout.ConfDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.Layout.ConfDir, "nix.conf"), []byte("sandbox = false\n"), 0o644))

	_, err := p.Plan(ctx)
	require.Error(t, err)

	p.Force = true
	_, err = p.Plan(ctx)
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Linux)
		path   string
	}{
		{name: "defaults", modify: func(*Linux) {}},
		{name: "no users", modify: func(p *Linux) { p.NixBuildUserCount = 0 }, path: "nix_build_user_count"},
		{name: "no group", modify: func(p *Linux) { p.NixBuildGroupName = "" }, path: "nix_build_group_name"},
		{name: "unknown init", modify: func(p *Linux) { p.Init = "upstart" }, path: "init"},
		{name: "no root", modify: func(p *Linux) { p.Layout.Root = "" }, path: "layout.root"},
		{
			name: "extra conf without nix.conf",
			modify: func(p *Linux) {
				p.SkipNixConf = true
				p.ExtraConf = []string{"max-jobs = 4"}
			},
			path: "extra_conf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPlanner(t)
			tt.modify(p)

			err := p.Validate()
			if tt.path == "" {
				assert.NoError(t, err)
				return
			}

			var verrs config.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.path, verrs[0].Path)
		})
	}
}

func TestPreInstallCheck(t *testing.T) {
	ctx := accountsRunner().Context(context.Background())
	p := testPlanner(t)
	require.NoError(t, p.PreInstallCheck(ctx))

	nix := filepath.Join(p.Layout.profilePath(), "bin", "nix")
	require.NoError(t, os.MkdirAll(filepath.Dir(nix), 0o755))
	require.NoError(t, os.WriteFile(nix, nil, 0o755))

	err := p.PreInstallCheck(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already installed")

	require.NoError(t, os.WriteFile(p.Layout.receiptPath(), []byte("{}"), 0o644))
	assert.NoError(t, p.PreInstallCheck(ctx), "resuming with a receipt")
	require.NoError(t, os.Remove(p.Layout.receiptPath()))

	receipt := filepath.Join(t.TempDir(), "elsewhere.json")
	p.UseReceipt(receipt)
	assert.Error(t, p.PreInstallCheck(ctx), "the receipt path is empty")
	require.NoError(t, os.WriteFile(receipt, []byte("{}"), 0o644))
	assert.NoError(t, p.PreInstallCheck(ctx), "resuming with a receipt outside the root")
	p.UseReceipt("")

	p.Force = true
	assert.NoError(t, p.PreInstallCheck(ctx))

	p.Init = base.InitSystemd
	assert.ErrorContains(t, p.PreInstallCheck(ctx), "systemctl")
}

func TestPlatformCheck(t *testing.T) {
	defer func(o, a string) { goos, goarch = o, a }(goos, goarch)
	p := testPlanner(t)

	goos, goarch = "linux", "arm64"
	assert.NoError(t, p.PlatformCheck(context.Background()))

	goos, goarch = "linux", "riscv64"
	assert.Error(t, p.PlatformCheck(context.Background()))

	goos, goarch = "darwin", "arm64"
	assert.Error(t, p.PlatformCheck(context.Background()))
}

func TestSettings(t *testing.T) {
	p := testPlanner(t)

	settings, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, true, settings["modify_profile"])
	assert.Equal(t, json.Number("2"), settings["nix_build_user_count"])
	assert.Equal(t, "none", settings["init"])
	assert.NotContains(t, settings, "layout")

	configured, err := p.ConfiguredSettings()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"nix_build_group_name":  "froyo-test-nixbld",
		"nix_build_user_prefix": "froyo-test-nixbld",
		"nix_build_user_count":  json.Number("2"),
	}, configured)
}

func TestDefaultPackageURL(t *testing.T) {
	assert.Equal(t,
		"https://releases.nixos.org/nix/nix-"+NixVersion+"/nix-"+NixVersion+"-aarch64-linux.tar.xz",
		DefaultPackageURL("arm64"))
	assert.Contains(t, DefaultPackageURL("amd64"), "x86_64-linux")
}

func TestPlanRoundTripsThroughReceipt(t *testing.T) {
	ctx := accountsRunner().Context(context.Background())
	p := testPlanner(t)
	p.ExtraConf = []string{"max-jobs = 4"}

	plan := &engine.InstallPlan{Version: engine.Version, Actions: mustPlan(t, ctx, p), Planner: p}
	data, err := json.Marshal(plan)
	require.NoError(t, err)

	var decoded engine.InstallPlan
	require.NoError(t, json.Unmarshal(data, &decoded))

	got, ok := decoded.Planner.(*Linux)
	require.True(t, ok, "planner decoded as %T", decoded.Planner)
	assert.Equal(t, p.CommonSettings, got.CommonSettings)
	assert.Equal(t, p.InitSettings, got.InitSettings)
	assert.Equal(t, p.Layout, got.Layout)
	assert.Equal(t, tags(plan.Actions), tags(decoded.Actions))
}

func TestSelfTestRunsNixFromShells(t *testing.T) {
	runner := accountsRunner()
	ctx := runner.Context(context.Background())
	p := testPlanner(t)

	require.NoError(t, p.SelfTest(ctx))
	assert.Equal(t, []string{
		"sh -lc " + filepath.Join(p.Layout.Root, "var/nix/profiles/default/bin/nix") + " --version",
	}, runner.Lines())
}

func TestNew(t *testing.T) {
	ctx := (&commandtest.FakeRunner{Available: map[string]bool{}}).Context(context.Background())

	p, err := New(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, TagLinux, p.Tag())
	assert.NoError(t, p.(*Linux).CommonSettings.Validate())

	_, err = New(ctx, "darwin-multi")
	assert.ErrorContains(t, err, "unknown planner")
}

func TestSettingsFile(t *testing.T) {
	ctx := accountsRunner().Context(context.Background())
	loader := config.NewLoader()
	p := testPlanner(t)
	require.NoError(t, loader.Schemas().RegisterSchema(p.Tag(), p.Schema()))

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nix_build_user_count: 8\ninit: none\nextra_conf:\n  - max-jobs = 4\n"), 0o644))
	require.NoError(t, loader.Load(ctx, path, p.Tag(), p))
	assert.Equal(t, uint32(8), p.NixBuildUserCount)
	assert.Equal(t, []string{"max-jobs = 4"}, p.ExtraConf)
	assert.Equal(t, "froyo-test-nixbld", p.NixBuildGroupName)

	require.NoError(t, os.WriteFile(path, []byte("init: upstart\n"), 0o644))
	assert.Error(t, loader.Load(ctx, path, p.Tag(), p))
}

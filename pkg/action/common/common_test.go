package common

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
	"github.com/openfroyo/installer/pkg/command/commandtest"
)

func TestCreateNixTree(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "nix")

	s, err := PlanCreateNixTree(root)
	if err != nil {
		t.Fatalf("PlanCreateNixTree() error = %v", err)
	}
	if err := s.TryExecute(ctx); err != nil {
		t.Fatalf("TryExecute() error = %v", err)
	}

	for _, rel := range append(nixTreePaths, "store") {
		if info, err := os.Stat(filepath.Join(root, rel)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", rel, err)
		}
	}
	info, err := os.Stat(filepath.Join(root, "store"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSticky == 0 || info.Mode().Perm() != 0o775 {
		t.Errorf("store mode = %v, want sticky 0775", info.Mode())
	}

	if err := s.TryRevert(ctx); err != nil {
		t.Fatalf("TryRevert() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "var")); !os.IsNotExist(err) {
		t.Errorf("tree still present after revert: %v", err)
	}
}

func writeArchive(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, d := range []string{"nix-2.24.0-x86_64-linux/", "nix-2.24.0-x86_64-linux/store/", "nix-2.24.0-x86_64-linux/store/aaa-nix-2.24.0/"} {
		if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: d, Mode: 0o755}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nix.tar")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProvisionNix(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "nix")

	gid := uint32(os.Getgid())
	s, err := PlanProvisionNix(ProvisionOptions{
		Root:         root,
		ScratchDir:   filepath.Join(root, "temp-install-dir"),
		PackageURL:   writeArchive(t),
		BuildGroupID: gid,
	})
	if err != nil {
		t.Fatalf("PlanProvisionNix() error = %v", err)
	}

	descs := s.DescribeExecute()
	if got := descs[len(descs)-1].Headline; got != "Synchronize /nix/store ownership" {
		t.Errorf("last description = %q", got)
	}

	if err := s.TryExecute(ctx); err != nil {
		t.Fatalf("TryExecute() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "store", "aaa-nix-2.24.0")); err != nil {
		t.Errorf("store path not moved: %v", err)
	}
	if s.Inner().MoveUnpacked.State() != action.Completed {
		t.Errorf("MoveUnpacked state = %s, want Completed", s.Inner().MoveUnpacked.State())
	}
}

func TestCreateUsersAndGroup(t *testing.T) {
	runner := &commandtest.FakeRunner{Available: map[string]bool{
		"groupadd": true, "groupdel": true, "useradd": true, "userdel": true,
	}}
	ctx := runner.Context(context.Background())

	s, err := PlanCreateUsersAndGroup(ctx, UsersOptions{
		GroupName:  "froyo-test-nixbld",
		GroupID:    30000,
		UserPrefix: "froyo-test-nixbld",
		UserCount:  3,
		UserIDBase: 30000,
	})
	if err != nil {
		t.Fatalf("PlanCreateUsersAndGroup() error = %v", err)
	}
	if got := s.Synopsis(); got != "Create build users (UID 30001-30003) and group (GID 30000)" {
		t.Errorf("Synopsis() = %q", got)
	}

	if err := s.TryExecute(ctx); err != nil {
		t.Fatalf("TryExecute() error = %v", err)
	}
	if err := s.TryRevert(ctx); err != nil {
		t.Fatalf("TryRevert() error = %v", err)
	}

	var verbs []string
	for _, line := range runner.Lines() {
		fields := strings.Fields(line)
		verbs = append(verbs, fields[0]+" "+fields[len(fields)-1])
	}
	want := []string{
		"groupadd froyo-test-nixbld",
		"useradd froyo-test-nixbld1",
		"useradd froyo-test-nixbld2",
		"useradd froyo-test-nixbld3",
		"userdel froyo-test-nixbld3",
		"userdel froyo-test-nixbld2",
		"userdel froyo-test-nixbld1",
		"groupdel froyo-test-nixbld",
	}
	if !reflect.DeepEqual(verbs, want) {
		t.Errorf("commands = %q, want %q", verbs, want)
	}
}

func TestNixConf(t *testing.T) {
	got := NixConf("nixbld", "/etc/ssl/corp.pem", []string{"trusted-users = root alice\n", "max-jobs = 4"})
	for _, want := range []string{
		"build-users-group = nixbld\n",
		"experimental-features = nix-command flakes\n",
		"ssl-cert-file = /etc/ssl/corp.pem\n",
		"trusted-users = root alice\nmax-jobs = 4\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("NixConf() missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(NixConf("nixbld", "", nil), "ssl-cert-file") {
		t.Error("ssl-cert-file written without a bundle")
	}
}

func TestPlaceNixConfiguration(t *testing.T) {
	ctx := context.Background()
	confDir := filepath.Join(t.TempDir(), "etc", "nix")

	s, err := PlanPlaceNixConfiguration(confDir, "nixbld", "", nil, false)
	if err != nil {
		t.Fatalf("PlanPlaceNixConfiguration() error = %v", err)
	}
	if err := s.TryExecute(ctx); err != nil {
		t.Fatalf("TryExecute() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(confDir, "nix.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != NixConf("nixbld", "", nil) {
		t.Errorf("nix.conf = %q", data)
	}

	if _, err := PlanPlaceNixConfiguration(confDir, "otherbld", "", nil, false); err == nil {
		t.Error("different nix.conf accepted without force")
	}
	again, err := PlanPlaceNixConfiguration(confDir, "nixbld", "", nil, false)
	if err != nil {
		t.Fatalf("replanning identical config: %v", err)
	}
	if again.Inner().CreateFile.State() != action.Completed {
		t.Errorf("identical nix.conf planned %s, want Completed", again.Inner().CreateFile.State())
	}

	if err := s.TryRevert(ctx); err != nil {
		t.Fatalf("TryRevert() error = %v", err)
	}
	if _, err := os.Stat(confDir); !os.IsNotExist(err) {
		t.Errorf("%s still present: %v", confDir, err)
	}
}

func TestConfigureShellProfile(t *testing.T) {
	tests := []struct {
		name  string
		fish  bool
		files []string
	}{
		{name: "posix only", fish: false, files: []string{"nix.sh"}},
		{name: "with fish", fish: true, files: []string{"nix.sh", "nix.fish"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			locations := ShellProfileLocations{
				ProfileDir:  filepath.Join(dir, "profile.d"),
				FishConfDir: filepath.Join(dir, "fish", "conf.d"),
			}
			for _, d := range []string{locations.ProfileDir, locations.FishConfDir} {
				if d == locations.FishConfDir && !tt.fish {
					continue
				}
				if err := os.MkdirAll(d, 0o755); err != nil {
					t.Fatal(err)
				}
			}

			s, err := PlanConfigureShellProfile(locations, "/nix/var/nix/profiles/default", false)
			if err != nil {
				t.Fatalf("PlanConfigureShellProfile() error = %v", err)
			}
			if len(s.Inner().CreateFiles) != len(tt.files) {
				t.Fatalf("planned %d files, want %d", len(s.Inner().CreateFiles), len(tt.files))
			}
			if err := s.TryExecute(context.Background()); err != nil {
				t.Fatalf("TryExecute() error = %v", err)
			}

			data, err := os.ReadFile(filepath.Join(locations.ProfileDir, "nix.sh"))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), ". '/nix/var/nix/profiles/default/etc/profile.d/nix-daemon.sh'") {
				t.Errorf("nix.sh = %q", data)
			}
		})
	}
}

func TestSetupChannels(t *testing.T) {
	runner := &commandtest.FakeRunner{}
	ctx := runner.Context(context.Background())
	home := t.TempDir()

	s, err := PlanSetupChannels(home, "/nix/var/nix/profiles/default", false)
	if err != nil {
		t.Fatalf("PlanSetupChannels() error = %v", err)
	}
	if err := s.TryExecute(ctx); err != nil {
		t.Fatalf("TryExecute() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, ".nix-channels"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != DefaultChannel+" nixpkgs\n" {
		t.Errorf(".nix-channels = %q", data)
	}

	calls := runner.Calls()
	if len(calls) != 1 {
		t.Fatalf("commands = %q, want one", runner.Lines())
	}
	if got := commandtest.Line(&calls[0]); got != "/nix/var/nix/profiles/default/bin/nix-channel --update nixpkgs" {
		t.Errorf("command = %q", got)
	}
	if calls[0].Env["HOME"] != home {
		t.Errorf("HOME = %q, want %q", calls[0].Env["HOME"], home)
	}

	if err := s.TryRevert(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(home, ".nix-channels")); !os.IsNotExist(err) {
		t.Errorf(".nix-channels still present: %v", err)
	}
}

func TestConfigureNixStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	conf, err := PlanPlaceNixConfiguration(filepath.Join(dir, "etc", "nix"), "nixbld", "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	shell, err := PlanConfigureShellProfile(ShellProfileLocations{
		ProfileDir:  filepath.Join(dir, "profile.d"),
		FishConfDir: filepath.Join(dir, "missing"),
	}, "/nix/var/nix/profiles/default", false)
	if err != nil {
		t.Fatal(err)
	}
	profile := base.PlanSetupDefaultProfile(filepath.Join(dir, "no-such-unpack"), filepath.Join(dir, "default"), "/nix/store")

	s := PlanConfigureNix(profile, conf, shell, nil)
	if err := s.TryExecute(ctx); err == nil {
		t.Fatal("TryExecute() succeeded without an unpacked archive")
	}

	if conf.State() != action.Completed {
		t.Errorf("nix.conf state = %s, want Completed", conf.State())
	}
	if shell.State() != action.Uncompleted {
		t.Errorf("shell profile state = %s, want Uncompleted", shell.State())
	}

	if err := s.Inner().Revert(ctx); err != nil {
		t.Fatalf("Revert() error = %v", err)
	}
	if conf.State() != action.Uncompleted {
		t.Errorf("nix.conf state after revert = %s, want Uncompleted", conf.State())
	}
}

func TestConfigureNixRoundTrip(t *testing.T) {
	profile := base.PlanSetupDefaultProfile("/nix/temp-install-dir", "/nix/var/nix/profiles/default", "/nix/store")
	s := PlanConfigureNix(profile, nil, nil, nil)

	data, err := json.Marshal(action.Erase(s))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded action.Stateful[action.Action]
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	got, ok := decoded.Inner().(*ConfigureNix)
	if !ok {
		t.Fatalf("decoded %T, want *ConfigureNix", decoded.Inner())
	}
	if got.PlaceNixConfiguration != nil || got.SetupChannels != nil || got.ConfigureShellProfile != nil {
		t.Errorf("optional children decoded as present: %+v", got)
	}
	if *got.SetupDefaultProfile.Inner() != *profile.Inner() {
		t.Errorf("SetupDefaultProfile = %+v, want %+v", got.SetupDefaultProfile.Inner(), profile.Inner())
	}
}

func TestPlanCreateUsersAndGroupPropagatesConflicts(t *testing.T) {
	u, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		t.Skipf("current group not resolvable: %v", err)
	}
	gid, _ := strconv.ParseUint(g.Gid, 10, 32)

	runner := &commandtest.FakeRunner{}
	ctx := runner.Context(context.Background())
	_, err = PlanCreateUsersAndGroup(ctx, UsersOptions{
		GroupName:  g.Name,
		GroupID:    uint32(gid) + 1,
		UserPrefix: "froyo-test-nixbld",
		UserCount:  1,
		UserIDBase: 30000,
	})

	var conflict *base.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *base.ConflictError", err)
	}
	var actionErr *action.Error
	if !errors.As(err, &actionErr) || actionErr.Tag != TagCreateUsersAndGroup {
		t.Errorf("error not tagged %s: %v", TagCreateUsersAndGroup, err)
	}
}

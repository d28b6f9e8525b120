package base

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/command"
	"github.com/openfroyo/installer/pkg/profile"
)

var storePathLine = regexp.MustCompile(`^(nix|cacert)="([^"]+)"\s*$`)

// SetupDefaultProfile registers the unpacked store paths in the Nix
// database and installs Nix and its CA certificates into the default
// profile.
type SetupDefaultProfile struct {
	UnpackedPath string `json:"unpacked_path"`
	ProfilePath  string `json:"profile_path"`
	StoreDir     string `json:"store_dir"`
}

// PlanSetupDefaultProfile plans the default profile setup.
func PlanSetupDefaultProfile(unpackedPath, profilePath, storeDir string) *action.Stateful[*SetupDefaultProfile] {
	return action.NewUncompleted(&SetupDefaultProfile{
		UnpackedPath: unpackedPath,
		ProfilePath:  profilePath,
		StoreDir:     storeDir,
	})
}

// Tag implements action.Action.
func (a *SetupDefaultProfile) Tag() action.Tag { return TagSetupDefaultProfile }

// Synopsis implements action.Action.
func (a *SetupDefaultProfile) Synopsis() string {
	return "Setup the default Nix profile"
}

// ExecuteDescription implements action.Action.
func (a *SetupDefaultProfile) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// RevertDescription implements action.Action.
func (a *SetupDefaultProfile) RevertDescription() []action.Description {
	return action.Describe("Unset the default Nix profile")
}

// Execute loads the archive's registration info and merges the bundled
// packages into the profile.
func (a *SetupDefaultProfile) Execute(ctx context.Context) error {
	found, err := findUnpackedNix(a.UnpackedPath)
	if err != nil {
		return err
	}

	nixPkg, cacertPkg, err := a.storePaths(filepath.Join(found, "install"))
	if err != nil {
		return err
	}

	reginfoPath := filepath.Join(found, ".reginfo")
	reginfo, err := os.ReadFile(reginfoPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", reginfoPath, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("no home directory for the installing user: %w", err)
	}

	loadDB := command.New(filepath.Join(nixPkg, "bin", "nix-store"), "--load-db").
		WithEnv("HOME", home).
		WithStdin(reginfo)
	if _, err := command.Run(ctx, loadDB); err != nil {
		return err
	}

	p := &profile.Profile{
		Path: a.ProfilePath,
		Tool: profile.ToolFor(a.ProfilePath, nixPkg, cacertPkg),
	}
	if err := p.InstallPackages(ctx, []string{nixPkg, cacertPkg}); err != nil {
		return fmt.Errorf("failed to install packages into %s: %w", a.ProfilePath, err)
	}

	// Later steps such as channel updates need a CA bundle.
	return os.Setenv("NIX_SSL_CERT_FILE", filepath.Join(a.ProfilePath, "etc/ssl/certs/ca-bundle.crt"))
}

// Revert unsets NIX_SSL_CERT_FILE. The profile itself is removed with the
// store.
func (a *SetupDefaultProfile) Revert(ctx context.Context) error {
	return os.Unsetenv("NIX_SSL_CERT_FILE")
}

// storePaths reads the nix and cacert store paths from the archive's
// install script.
func (a *SetupDefaultProfile) storePaths(script string) (string, string, error) {
	data, err := os.ReadFile(script)
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", script, err)
	}

	paths := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := storePathLine.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			paths[m[1]] = m[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("failed to scan %s: %w", script, err)
	}

	for _, key := range []string{"nix", "cacert"} {
		p, ok := paths[key]
		if !ok {
			return "", "", fmt.Errorf("malformed archive: %s does not name the %s store path", script, key)
		}
		if a.StoreDir != "" && !strings.HasPrefix(p, strings.TrimSuffix(a.StoreDir, "/")+"/") {
			return "", "", fmt.Errorf("malformed archive: %s store path %s is outside %s", key, p, a.StoreDir)
		}
	}
	return paths["nix"], paths["cacert"], nil
}

package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/openfroyo/installer/pkg/command"
)

// emptyProfileExpr builds an empty user environment with the builtin
// buildenv builder.
const emptyProfileExpr = `
derivation {
  name = "user-environment";
  system = "builtin";
  builder = "builtin:buildenv";
  derivations = [];
  manifest = builtins.toFile "env-manifest.nix" "[]";
}
`

// NixEnv manages profiles with nix-env from a specific Nix package.
type NixEnv struct {
	// NixPackage is the store path of the Nix package providing bin/nix and
	// bin/nix-env.
	NixPackage string

	// CACertPackage is the store path of the CA certificate package.
	CACertPackage string
}

func (n *NixEnv) cmd(bin string, args ...string) *command.Cmd {
	return nixCmd(n.NixPackage, n.CACertPackage, bin, args...)
}

// nixCmd runs bin from nixPkg offline, trusting the bundle in cacertPkg.
func nixCmd(nixPkg, cacertPkg, bin string, args ...string) *command.Cmd {
	full := append([]string{"--option", "substitute", "false", "--option", "post-build-hook", ""}, args...)
	cmd := command.New(filepath.Join(nixPkg, "bin", bin), full...)

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "/root"
	}
	cmd.WithEnv("HOME", home)
	cmd.WithEnv("NIX_SSL_CERT_FILE", filepath.Join(cacertPkg, "etc/ssl/certs/ca-bundle.crt"))
	return cmd
}

// CreateEmpty builds an empty user environment and links profile to it.
func (n *NixEnv) CreateEmpty(ctx context.Context, profile string) error {
	_, err := command.Run(ctx, n.cmd("nix", "build", "--expr", emptyProfileExpr, "--out-link", profile))
	return err
}

// Set points profile at target.
func (n *NixEnv) Set(ctx context.Context, profile, target string) error {
	_, err := command.Run(ctx, n.cmd("nix-env", "--profile", profile, "--set", target))
	return err
}

type nixEnvPackage struct {
	Outputs map[string]string `json:"outputs"`
}

// Installed returns the output paths of every package in profile.
func (n *NixEnv) Installed(ctx context.Context, profile string) ([]string, error) {
	cmd := n.cmd("nix-env", "--profile", profile, "--query", "--installed", "--out-path", "--json")
	cmd.WithStdin([]byte{})

	result, err := command.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var pkgs map[string]nixEnvPackage
	if err := json.Unmarshal([]byte(result.Stdout), &pkgs); err != nil {
		return nil, fmt.Errorf("failed to parse nix-env query output: %w", err)
	}

	seen := make(map[string]bool)
	var roots []string
	for _, pkg := range pkgs {
		for _, out := range pkg.Outputs {
			if !seen[out] {
				seen[out] = true
				roots = append(roots, out)
			}
		}
	}
	sort.Strings(roots)
	return roots, nil
}

// Install adds root to profile.
func (n *NixEnv) Install(ctx context.Context, profile, root string) error {
	_, err := command.Run(ctx, n.cmd("nix-env", "--profile", profile, "--install", root))
	return err
}

// Uninstall removes root from profile.
func (n *NixEnv) Uninstall(ctx context.Context, profile, root string) error {
	_, err := command.Run(ctx, n.cmd("nix-env", "--profile", profile, "--uninstall", root))
	return err
}

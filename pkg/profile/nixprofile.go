package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/openfroyo/installer/pkg/command"
)

// NixProfile manages profiles in the manifest.json format with the
// `nix profile` commands.
type NixProfile struct {
	// NixPackage is the store path of the Nix package providing bin/nix.
	NixPackage string

	// CACertPackage is the store path of the CA certificate package.
	CACertPackage string
}

func (n *NixProfile) cmd(args ...string) *command.Cmd {
	return nixCmd(n.NixPackage, n.CACertPackage, "nix",
		append([]string{"--extra-experimental-features", "nix-command"}, args...)...)
}

// CreateEmpty leaves profile absent; nix profile starts a new profile on
// the first install.
func (n *NixProfile) CreateEmpty(_ context.Context, profile string) error {
	if err := os.Remove(profile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear %s: %w", profile, err)
	}
	return nil
}

// Set points profile at target.
func (n *NixProfile) Set(ctx context.Context, profile, target string) error {
	_, err := command.Run(ctx, n.cmd("build", "--profile", profile, target))
	return err
}

type profileElement struct {
	StorePaths []string `json:"storePaths"`
}

// elements maps each element's handle to its store paths. Newer Nix names
// elements; older Nix lists them and removes them by index.
func (n *NixProfile) elements(ctx context.Context, profile string) (map[string][]string, error) {
	cmd := n.cmd("profile", "list", "--profile", profile, "--json")
	cmd.WithStdin([]byte{})

	result, err := command.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var manifest struct {
		Elements json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse nix profile list output: %w", err)
	}

	out := make(map[string][]string)
	if len(manifest.Elements) == 0 || string(manifest.Elements) == "null" {
		return out, nil
	}

	var named map[string]profileElement
	if err := json.Unmarshal(manifest.Elements, &named); err == nil {
		for name, el := range named {
			out[name] = el.StorePaths
		}
		return out, nil
	}

	var listed []*profileElement
	if err := json.Unmarshal(manifest.Elements, &listed); err != nil {
		return nil, fmt.Errorf("failed to parse nix profile elements: %w", err)
	}
	for i, el := range listed {
		// Removed elements leave a null behind and keep the indices stable.
		if el != nil {
			out[strconv.Itoa(i)] = el.StorePaths
		}
	}
	return out, nil
}

// Installed returns the store paths of every element in profile.
func (n *NixProfile) Installed(ctx context.Context, profile string) ([]string, error) {
	elements, err := n.elements(ctx, profile)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var roots []string
	for _, paths := range elements {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				roots = append(roots, p)
			}
		}
	}
	sort.Strings(roots)
	return roots, nil
}

// Install adds root to profile.
func (n *NixProfile) Install(ctx context.Context, profile, root string) error {
	_, err := command.Run(ctx, n.cmd("profile", "install", "--profile", profile, root))
	return err
}

// Uninstall removes the element providing root from profile.
func (n *NixProfile) Uninstall(ctx context.Context, profile, root string) error {
	elements, err := n.elements(ctx, profile)
	if err != nil {
		return err
	}

	var handles []string
	for handle, paths := range elements {
		for _, p := range paths {
			if p == root {
				handles = append(handles, handle)
				break
			}
		}
	}
	if len(handles) == 0 {
		return fmt.Errorf("no element of %s provides %s", profile, root)
	}
	sort.Strings(handles)

	_, err = command.Run(ctx, n.cmd(append([]string{"profile", "remove", "--profile", profile}, handles...)...))
	return err
}

// ToolFor returns the tool that understands the profile at path: NixProfile
// when it has a manifest.json, NixEnv otherwise.
func ToolFor(path, nixPkg, cacertPkg string) PackageTool {
	if _, err := os.Stat(filepath.Join(path, "manifest.json")); err == nil {
		return &NixProfile{NixPackage: nixPkg, CACertPackage: cacertPkg}
	}
	return &NixEnv{NixPackage: nixPkg, CACertPackage: cacertPkg}
}

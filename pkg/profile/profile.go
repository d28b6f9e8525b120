package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// PackageTool manipulates profiles. Every method except Set with the real
// profile as its first argument is only ever called on a scratch profile.
type PackageTool interface {
	// CreateEmpty makes profile point at an empty snapshot.
	CreateEmpty(ctx context.Context, profile string) error

	// Set makes profile point at the snapshot target resolves to.
	Set(ctx context.Context, profile, target string) error

	// Installed lists the roots in the snapshot profile points at.
	Installed(ctx context.Context, profile string) ([]string, error)

	// Install adds root to profile.
	Install(ctx context.Context, profile, root string) error

	// Uninstall removes root from profile.
	Uninstall(ctx context.Context, profile, root string) error
}

// Profile is a package-set pointer managed through Tool.
type Profile struct {
	// Path is the profile location, e.g. /nix/var/nix/profiles/default.
	Path string

	// Tool performs the snapshot operations.
	Tool PackageTool
}

// InstallPackages ensures every root is present in the profile.
//
// New roots that overlap each other are rejected before anything changes.
// Installed roots that overlap a new root are evicted. All work happens on a
// scratch profile; Path is repointed once, at the end.
func (p *Profile) InstallPackages(ctx context.Context, roots []string) error {
	if err := checkCohabitation(roots); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "froyo-profile-")
	if err != nil {
		return fmt.Errorf("failed to create scratch profile directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Warn().Err(err).Str("path", tmp).Msg("Failed to remove scratch profile directory")
		}
	}()
	scratch := filepath.Join(tmp, "profile")

	if err := p.Tool.CreateEmpty(ctx, scratch); err != nil {
		return &ToolError{Op: "create empty profile", Err: err}
	}

	if resolved, err := filepath.EvalSymlinks(p.Path); err == nil {
		log.Debug().Str("profile", p.Path).Str("target", resolved).Msg("Duplicating the existing profile into the scratch profile")
		if err := p.Tool.Set(ctx, scratch, resolved); err != nil {
			return &ToolError{Op: "duplicate existing profile", Root: resolved, Err: err}
		}
	}

	installed, err := p.Tool.Installed(ctx, scratch)
	if err != nil {
		return &ToolError{Op: "query installed packages", Err: err}
	}

	footprints := make(map[string]Footprint, len(installed))
	for _, root := range installed {
		fp, err := ComputeFootprint(root)
		if err != nil {
			log.Debug().Err(err).Str("root", root).Msg("Treating unreadable installed package as empty")
			fp = Footprint{}
		}
		footprints[root] = fp
	}

	for _, root := range roots {
		fp, err := ComputeFootprint(root)
		if err != nil {
			return err
		}

		for _, existing := range installed {
			existingFP, ok := footprints[existing]
			if !ok {
				continue
			}
			conflicts := existingFP.Intersect(fp)
			if len(conflicts) == 0 {
				continue
			}

			log.Debug().
				Str("profile", scratch).
				Str("evicted", existing).
				Strs("conflicts", conflicts).
				Msg("Uninstalling package from the scratch profile due to conflicts")

			if err := p.Tool.Uninstall(ctx, scratch, existing); err != nil {
				return &ToolError{Op: "uninstall conflicting package", Root: existing, Err: err}
			}
			delete(footprints, existing)
		}

		if err := p.Tool.Install(ctx, scratch, root); err != nil {
			return &ToolError{Op: "install package", Root: root, Err: err}
		}
		installed = append(installed, root)
		footprints[root] = fp
	}

	if err := p.Tool.Set(ctx, p.Path, scratch); err != nil {
		return &ToolError{Op: "update profile", Root: p.Path, Err: err}
	}
	return nil
}

// checkCohabitation fails when two requested roots share a path.
func checkCohabitation(roots []string) error {
	all := make(Footprint)
	for _, root := range roots {
		fp, err := ComputeFootprint(root)
		if err != nil {
			return err
		}
		if shared := all.Intersect(fp); len(shared) > 0 {
			return &PathConflictError{Root: root, Paths: shared}
		}
		all.Merge(fp)
	}
	return nil
}

// PathConflictError is returned when requested packages overlap each other.
type PathConflictError struct {
	Root  string
	Paths []string
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("package %s conflicts with another requested package on: %s",
		e.Root, strings.Join(e.Paths, ", "))
}

// ToolError is returned when the package tool fails.
type ToolError struct {
	// Op names the step that failed.
	Op string

	// Root is the package or profile involved, if any.
	Root string

	Err error
}

func (e *ToolError) Error() string {
	if e.Root != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Root, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

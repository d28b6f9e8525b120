package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// manifestName is the file inside a snapshot listing its roots.
const manifestName = ".manifest.json"

type manifest struct {
	Roots []string `json:"roots"`
}

// LinkFarm is a PackageTool that needs no package manager. A snapshot is a
// directory under StoreDir holding a symlink for every footprint path of its
// roots plus a manifest. Snapshots are never modified after creation; a
// profile is a symlink to one and is swapped atomically.
type LinkFarm struct {
	StoreDir string
}

// CollisionError is returned when installing a root whose paths are already
// provided by another root in the snapshot.
type CollisionError struct {
	Root     string
	Existing string
	Paths    []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("package %s collides with installed package %s on: %s",
		e.Root, e.Existing, strings.Join(e.Paths, ", "))
}

// CreateEmpty links profile to a new empty snapshot.
func (l *LinkFarm) CreateEmpty(_ context.Context, profile string) error {
	snapshot, err := l.build(nil)
	if err != nil {
		return err
	}
	return swapLink(profile, snapshot)
}

// Set links profile to the snapshot target resolves to.
func (l *LinkFarm) Set(_ context.Context, profile, target string) error {
	snapshot, err := l.resolve(target)
	if err != nil {
		return err
	}
	return swapLink(profile, snapshot)
}

// Installed returns the roots of the snapshot profile points at.
func (l *LinkFarm) Installed(_ context.Context, profile string) ([]string, error) {
	snapshot, err := l.resolve(profile)
	if err != nil {
		return nil, err
	}
	m, err := readManifest(snapshot)
	if err != nil {
		return nil, err
	}
	return m.Roots, nil
}

// Install links profile to a new snapshot with root added.
func (l *LinkFarm) Install(_ context.Context, profile, root string) error {
	snapshot, err := l.resolve(profile)
	if err != nil {
		return err
	}
	m, err := readManifest(snapshot)
	if err != nil {
		return err
	}

	fp, err := ComputeFootprint(root)
	if err != nil {
		return err
	}
	for _, existing := range m.Roots {
		if existing == root {
			return nil
		}
		existingFP, err := ComputeFootprint(existing)
		if err != nil {
			continue
		}
		if shared := existingFP.Intersect(fp); len(shared) > 0 {
			return &CollisionError{Root: root, Existing: existing, Paths: shared}
		}
	}

	next, err := l.build(append(append([]string{}, m.Roots...), root))
	if err != nil {
		return err
	}
	return swapLink(profile, next)
}

// Uninstall links profile to a new snapshot without root.
func (l *LinkFarm) Uninstall(_ context.Context, profile, root string) error {
	snapshot, err := l.resolve(profile)
	if err != nil {
		return err
	}
	m, err := readManifest(snapshot)
	if err != nil {
		return err
	}

	remaining := make([]string, 0, len(m.Roots))
	found := false
	for _, r := range m.Roots {
		if r == root {
			found = true
			continue
		}
		remaining = append(remaining, r)
	}
	if !found {
		return fmt.Errorf("package %s is not installed in %s", root, profile)
	}

	next, err := l.build(remaining)
	if err != nil {
		return err
	}
	return swapLink(profile, next)
}

// resolve follows links from path to a snapshot directory inside StoreDir.
func (l *LinkFarm) resolve(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve profile %s: %w", path, err)
	}
	store, err := filepath.EvalSymlinks(l.StoreDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve store %s: %w", l.StoreDir, err)
	}
	if filepath.Dir(resolved) != store {
		return "", fmt.Errorf("%s does not point into the snapshot store %s", path, l.StoreDir)
	}
	return resolved, nil
}

// build creates a snapshot for roots and returns its path.
func (l *LinkFarm) build(roots []string) (string, error) {
	if err := os.MkdirAll(l.StoreDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot store: %w", err)
	}

	snapshot := filepath.Join(l.StoreDir, uuid.New().String())
	if err := os.Mkdir(snapshot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	sorted := append([]string{}, roots...)
	sort.Strings(sorted)

	for _, root := range sorted {
		fp, err := ComputeFootprint(root)
		if err != nil {
			_ = os.RemoveAll(snapshot)
			return "", err
		}
		for _, rel := range fp.Paths() {
			target := filepath.Join(root, rel)
			link := filepath.Join(snapshot, rel)
			if rel == "." {
				link = filepath.Join(snapshot, filepath.Base(root))
			}
			if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
				_ = os.RemoveAll(snapshot)
				return "", fmt.Errorf("failed to create snapshot directory: %w", err)
			}
			if err := os.Symlink(target, link); err != nil {
				_ = os.RemoveAll(snapshot)
				return "", fmt.Errorf("failed to link %s: %w", rel, err)
			}
		}
	}

	data, err := json.Marshal(manifest{Roots: sorted})
	if err != nil {
		_ = os.RemoveAll(snapshot)
		return "", err
	}
	if err := os.WriteFile(filepath.Join(snapshot, manifestName), data, 0o444); err != nil {
		_ = os.RemoveAll(snapshot)
		return "", fmt.Errorf("failed to write snapshot manifest: %w", err)
	}
	return snapshot, nil
}

func readManifest(snapshot string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(snapshot, manifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot manifest: %w", err)
	}
	return &m, nil
}

// swapLink atomically points link at target.
func swapLink(link, target string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", link, uuid.New().String())
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed to create profile link: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("profile %s exists and is not a link: %w", link, err)
		}
		return fmt.Errorf("failed to swap profile link: %w", err)
	}
	return nil
}

package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// Footprint is the set of relative file paths a package root contributes.
type Footprint map[string]struct{}

// ComputeFootprint walks root, following symlinks, and records the relative
// path of every non-directory entry. Entries that cannot be read are skipped.
// A root that is itself a file contributes ".".
func ComputeFootprint(root string) (Footprint, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &FootprintError{Root: root, Err: err}
	}

	fp := make(Footprint)
	if !info.IsDir() {
		fp["."] = struct{}{}
		return fp, nil
	}

	if err := walkFollowing(root, "", fp, make(map[string]bool)); err != nil {
		return nil, &FootprintError{Root: root, Err: err}
	}
	return fp, nil
}

func walkFollowing(dir, rel string, fp Footprint, visited map[string]bool) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if visited[real] {
		return nil
	}
	visited[real] = true
	defer delete(visited, real)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		relPath := filepath.Join(rel, entry.Name())

		info, err := os.Stat(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			continue
		}

		if info.IsDir() {
			if err := walkFollowing(path, relPath, fp, visited); err != nil {
				log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable directory")
			}
			continue
		}
		fp[relPath] = struct{}{}
	}
	return nil
}

// Paths returns the footprint in sorted order.
func (f Footprint) Paths() []string {
	paths := make([]string, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Intersect returns the sorted paths present in both footprints.
func (f Footprint) Intersect(other Footprint) []string {
	small, large := f, other
	if len(small) > len(large) {
		small, large = large, small
	}

	var shared []string
	for p := range small {
		if _, ok := large[p]; ok {
			shared = append(shared, p)
		}
	}
	sort.Strings(shared)
	return shared
}

// Merge adds every path of other to f.
func (f Footprint) Merge(other Footprint) {
	for p := range other {
		f[p] = struct{}{}
	}
}

// FootprintError is returned when a root's footprint cannot be computed.
type FootprintError struct {
	Root string
	Err  error
}

func (e *FootprintError) Error() string {
	return fmt.Sprintf("failed to enumerate the contents of %s: %v", e.Root, e.Err)
}

func (e *FootprintError) Unwrap() error {
	return e.Err
}

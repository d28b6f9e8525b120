package base

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
)

// MoveUnpacked moves the store paths of an unpacked archive into the store.
type MoveUnpacked struct {
	Src      string `json:"src"`
	StoreDir string `json:"store_dir"`
}

// PlanMoveUnpacked plans moving the store of the archive unpacked in src to
// storeDir.
func PlanMoveUnpacked(src, storeDir string) *action.Stateful[*MoveUnpacked] {
	return action.NewUncompleted(&MoveUnpacked{Src: src, StoreDir: storeDir})
}

// Tag implements action.Action.
func (a *MoveUnpacked) Tag() action.Tag { return TagMoveUnpacked }

// Synopsis implements action.Action.
func (a *MoveUnpacked) Synopsis() string {
	return fmt.Sprintf("Move the downloaded Nix into `%s`", a.StoreDir)
}

// ExecuteDescription implements action.Action.
func (a *MoveUnpacked) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis(),
		fmt.Sprintf("Nix is being downloaded to `%s` and should be in `%s`", a.Src, a.StoreDir))
}

// RevertDescription is empty: moved paths leave with the store.
func (a *MoveUnpacked) RevertDescription() []action.Description {
	return nil
}

// Execute renames each entry of the archive's store directory into
// StoreDir, keeping entries that are already present.
func (a *MoveUnpacked) Execute(ctx context.Context) error {
	found, err := findUnpackedNix(a.Src)
	if err != nil {
		return err
	}

	srcStore := filepath.Join(found, "store")
	entries, err := os.ReadDir(srcStore)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcStore, err)
	}

	if err := os.MkdirAll(a.StoreDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", a.StoreDir, err)
	}

	moved := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		dest := filepath.Join(a.StoreDir, entry.Name())
		if _, err := os.Lstat(dest); err == nil {
			log.Trace().Str("path", dest).Msg("Store path already present, skipping")
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to inspect %s: %w", dest, err)
		}

		if err := os.Rename(filepath.Join(srcStore, entry.Name()), dest); err != nil {
			return fmt.Errorf("failed to move %s into %s: %w", entry.Name(), a.StoreDir, err)
		}
		moved++
	}

	log.Debug().Int("moved", moved).Int("total", len(entries)).Str("store", a.StoreDir).Msg("Moved unpacked store paths")
	return nil
}

// Revert implements action.Action.
func (a *MoveUnpacked) Revert(ctx context.Context) error {
	return nil
}

// findUnpackedNix returns the single nix-* directory under dir.
func findUnpackedNix(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var found []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "nix-") {
			found = append(found, filepath.Join(dir, entry.Name()))
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("malformed archive: expected one nix-* directory in %s, found %d", dir, len(found))
	}
	return found[0], nil
}

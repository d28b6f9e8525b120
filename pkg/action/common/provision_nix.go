package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
)

// ProvisionNix places Nix into the store: fetch, create the tree, move the
// unpacked store paths, then hand the store to the build group.
type ProvisionNix struct {
	StoreDir      string                                 `json:"store_dir"`
	StoreGID      uint32                                 `json:"nix_store_gid"`
	FetchNix      *action.Stateful[*base.FetchAndUnpack] `json:"fetch_nix"`
	CreateNixTree *action.Stateful[*CreateNixTree]       `json:"create_nix_tree"`
	MoveUnpacked  *action.Stateful[*base.MoveUnpacked]   `json:"move_unpacked_nix"`
}

// ProvisionOptions configure PlanProvisionNix.
type ProvisionOptions struct {
	// Root is the Nix root, normally /nix.
	Root string

	// ScratchDir receives the unpacked archive.
	ScratchDir string

	// PackageURL is a path, http(s) or sftp URL of the Nix archive.
	PackageURL string

	// SSLCertFile is an extra CA bundle for https downloads.
	SSLCertFile string

	// BuildGroupID becomes the group of the store and its top-level paths.
	BuildGroupID uint32
}

// PlanProvisionNix plans the children in execution order.
func PlanProvisionNix(opts ProvisionOptions) (*action.Stateful[*ProvisionNix], error) {
	fetchNix, err := base.PlanFetchAndUnpack(opts.PackageURL, opts.ScratchDir, opts.SSLCertFile)
	if err != nil {
		return nil, action.Wrap(TagProvisionNix, err)
	}

	tree, err := PlanCreateNixTree(opts.Root)
	if err != nil {
		return nil, action.Wrap(TagProvisionNix, err)
	}

	storeDir := filepath.Join(opts.Root, "store")
	return action.NewUncompleted(&ProvisionNix{
		StoreDir:      storeDir,
		StoreGID:      opts.BuildGroupID,
		FetchNix:      fetchNix,
		CreateNixTree: tree,
		MoveUnpacked:  base.PlanMoveUnpacked(opts.ScratchDir, storeDir),
	}), nil
}

// Tag implements action.Action.
func (a *ProvisionNix) Tag() action.Tag { return TagProvisionNix }

// Synopsis implements action.Action.
func (a *ProvisionNix) Synopsis() string {
	return "Provision Nix"
}

// ExecuteDescription implements action.Action.
func (a *ProvisionNix) ExecuteDescription() []action.Description {
	var out []action.Description
	out = append(out, a.FetchNix.DescribeExecute()...)
	out = append(out, a.CreateNixTree.DescribeExecute()...)
	out = append(out, a.MoveUnpacked.DescribeExecute()...)
	out = append(out, action.Describe("Synchronize /nix/store ownership",
		fmt.Sprintf("Will update existing files in the Nix Store to use the Nix build group ID %d", a.StoreGID))...)
	return out
}

// RevertDescription implements action.Action.
func (a *ProvisionNix) RevertDescription() []action.Description {
	var out []action.Description
	out = append(out, a.MoveUnpacked.DescribeRevert()...)
	out = append(out, a.CreateNixTree.DescribeRevert()...)
	out = append(out, a.FetchNix.DescribeRevert()...)
	return out
}

// Execute implements action.Action.
func (a *ProvisionNix) Execute(ctx context.Context) error {
	if err := a.FetchNix.TryExecute(ctx); err != nil {
		return err
	}
	if err := a.CreateNixTree.TryExecute(ctx); err != nil {
		return err
	}
	if err := a.MoveUnpacked.TryExecute(ctx); err != nil {
		return err
	}
	return ensureStoreGroup(a.StoreDir, a.StoreGID)
}

// Revert reverts every child in reverse order and reports all failures.
func (a *ProvisionNix) Revert(ctx context.Context) error {
	var errs []error
	if err := a.MoveUnpacked.TryRevert(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.CreateNixTree.TryRevert(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.FetchNix.TryRevert(ctx); err != nil {
		errs = append(errs, err)
	}
	return action.JoinErrors(errs)
}

// ensureStoreGroup sets the group of the store and its immediate children to
// gid. Deeper paths belong to the builds that produced them. Failures on
// single entries are logged and skipped.
func ensureStoreGroup(storeDir string, gid uint32) error {
	entries, err := os.ReadDir(storeDir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", storeDir, err)
	}

	paths := []string{storeDir}
	for _, entry := range entries {
		paths = append(paths, filepath.Join(storeDir, entry.Name()))
	}

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read ownership of store path")
			continue
		}
		if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Gid == gid {
			continue
		}

		log.Debug().Str("path", path).Uint32("gid", gid).Msg("Re-owning store path group")
		if err := os.Lchown(path, -1, int(gid)); err != nil {
			log.Warn().Err(err).Str("path", path).Uint32("gid", gid).Msg("Failed to set the group of store path")
		}
	}
	return nil
}

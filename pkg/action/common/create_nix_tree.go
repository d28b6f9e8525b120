package common

import (
	"context"
	"os"
	"path/filepath"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
)

// nixTreePaths are created under the root, in order.
var nixTreePaths = []string{
	"var",
	"var/log",
	"var/log/nix",
	"var/log/nix/drvs",
	"var/nix",
	"var/nix/daemon-socket",
	"var/nix/gcroots",
	"var/nix/gcroots/per-user",
	"var/nix/profiles",
	"var/nix/profiles/per-user",
	"var/nix/temproots",
	"var/nix/userpool",
	"var/nix/db",
}

// CreateNixTree creates the directory skeleton of a Nix installation.
type CreateNixTree struct {
	CreateDirectories action.Children `json:"create_directories"`
}

// PlanCreateNixTree plans the state directories under root plus a sticky,
// group-writable store. The store's group is set by gid afterwards, since
// the build group may not exist yet.
func PlanCreateNixTree(root string) (*action.Stateful[*CreateNixTree], error) {
	var children action.Children
	for _, rel := range nixTreePaths {
		dir, err := base.PlanCreateDirectory(filepath.Join(root, rel), "", "", 0o755, false)
		if err != nil {
			return nil, action.Wrap(TagCreateNixTree, err)
		}
		children = append(children, action.Erase(dir))
	}

	store, err := base.PlanCreateDirectory(filepath.Join(root, "store"), "", "", 0o775|os.ModeSticky, false)
	if err != nil {
		return nil, action.Wrap(TagCreateNixTree, err)
	}
	children = append(children, action.Erase(store))

	return action.NewUncompleted(&CreateNixTree{CreateDirectories: children}), nil
}

// Tag implements action.Action.
func (a *CreateNixTree) Tag() action.Tag { return TagCreateNixTree }

// Synopsis implements action.Action.
func (a *CreateNixTree) Synopsis() string {
	return "Create a directory tree in `/nix`"
}

// ExecuteDescription implements action.Action.
func (a *CreateNixTree) ExecuteDescription() []action.Description {
	explanation := []string{"Nix and the Nix daemon require a Nix Store, which will be stored at `/nix/store`"}
	explanation = append(explanation, action.Explanations(a.CreateDirectories.ExecuteDescription())...)
	return action.Describe(a.Synopsis(), explanation...)
}

// RevertDescription implements action.Action.
func (a *CreateNixTree) RevertDescription() []action.Description {
	return action.Describe("Remove the directory tree in `/nix`",
		action.Explanations(a.CreateDirectories.RevertDescription())...)
}

// Execute implements action.Action.
func (a *CreateNixTree) Execute(ctx context.Context) error {
	return a.CreateDirectories.Execute(ctx)
}

// Revert implements action.Action.
func (a *CreateNixTree) Revert(ctx context.Context) error {
	return a.CreateDirectories.Revert(ctx)
}

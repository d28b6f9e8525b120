package base

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/installer/pkg/action"
)

// RemoveDirectory deletes a scratch directory. Reverting does nothing.
type RemoveDirectory struct {
	Path string `json:"path"`
}

// PlanRemoveDirectory plans the removal of path.
func PlanRemoveDirectory(path string) *action.Stateful[*RemoveDirectory] {
	return action.NewUncompleted(&RemoveDirectory{Path: path})
}

// Tag implements action.Action.
func (a *RemoveDirectory) Tag() action.Tag { return TagRemoveDirectory }

// Synopsis implements action.Action.
func (a *RemoveDirectory) Synopsis() string {
	return fmt.Sprintf("Remove directory `%s`", a.Path)
}

// ExecuteDescription implements action.Action.
func (a *RemoveDirectory) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// RevertDescription implements action.Action.
func (a *RemoveDirectory) RevertDescription() []action.Description {
	return nil
}

// Execute removes the directory tree. A missing directory is not an error.
func (a *RemoveDirectory) Execute(ctx context.Context) error {
	if err := os.RemoveAll(a.Path); err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", a.Path, err)
	}
	return nil
}

// Revert implements action.Action.
func (a *RemoveDirectory) Revert(ctx context.Context) error {
	return nil
}

package base

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
)

// CreateDirectory creates a directory with the given ownership and mode.
type CreateDirectory struct {
	Path  string      `json:"path"`
	User  string      `json:"user,omitempty"`
	Group string      `json:"group,omitempty"`
	Mode  os.FileMode `json:"mode,omitempty"`

	// Force removes a non-empty directory on revert.
	Force bool `json:"force_prune_on_revert"`

	// Preexisting records that the directory was already present at plan
	// time. Such a directory is never removed on revert.
	Preexisting bool `json:"preexisting"`
}

// PlanCreateDirectory plans the creation of path. An existing directory is
// planned Completed; any other existing file is an error.
func PlanCreateDirectory(path, userName, groupName string, mode os.FileMode, force bool) (*action.Stateful[*CreateDirectory], error) {
	a := &CreateDirectory{
		Path:  path,
		User:  userName,
		Group: groupName,
		Mode:  mode,
		Force: force,
	}

	info, err := os.Lstat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, action.Wrap(TagCreateDirectory, &ConflictError{Path: path, Reason: "exists and is not a directory"})
		}
		a.Preexisting = true
		log.Debug().Str("path", path).Msg("Creating directory already complete")
		return action.NewCompleted(a), nil
	case errors.Is(err, fs.ErrNotExist):
		return action.NewUncompleted(a), nil
	default:
		return nil, action.Wrap(TagCreateDirectory, fmt.Errorf("failed to inspect %s: %w", path, err))
	}
}

// Tag implements action.Action.
func (a *CreateDirectory) Tag() action.Tag { return TagCreateDirectory }

// Synopsis implements action.Action.
func (a *CreateDirectory) Synopsis() string {
	return fmt.Sprintf("Create directory `%s`", a.Path)
}

// ExecuteDescription implements action.Action.
func (a *CreateDirectory) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// RevertDescription implements action.Action.
func (a *CreateDirectory) RevertDescription() []action.Description {
	if a.Preexisting {
		return nil
	}
	return action.Describe(fmt.Sprintf("Remove the directory `%s`", a.Path))
}

// Execute creates the directory and applies mode and ownership.
func (a *CreateDirectory) Execute(ctx context.Context) error {
	if err := os.MkdirAll(a.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", a.Path, err)
	}

	if a.Mode != 0 {
		// Chmod bypasses the umask applied by MkdirAll.
		if err := os.Chmod(a.Path, a.Mode); err != nil {
			return fmt.Errorf("failed to set mode of %s: %w", a.Path, err)
		}
	}

	return setOwnership(a.Path, a.User, a.Group)
}

// Revert removes the directory unless it predates the plan. A non-empty
// directory is left in place unless Force is set.
func (a *CreateDirectory) Revert(ctx context.Context) error {
	if a.Preexisting {
		log.Debug().Str("path", a.Path).Msg("Not removing preexisting directory")
		return nil
	}

	entries, err := os.ReadDir(a.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", a.Path, err)
	}

	switch {
	case len(entries) == 0:
		return removeIfExists(a.Path)
	case a.Force:
		if err := os.RemoveAll(a.Path); err != nil {
			return fmt.Errorf("failed to remove directory %s: %w", a.Path, err)
		}
		return nil
	default:
		log.Debug().Str("path", a.Path).Msg("Not removing directory, it is not empty")
		return nil
	}
}

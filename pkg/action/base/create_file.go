package base

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/installer/pkg/action"
)

// CreateFile writes a file with fixed content, ownership and mode.
type CreateFile struct {
	Path    string      `json:"path"`
	User    string      `json:"user,omitempty"`
	Group   string      `json:"group,omitempty"`
	Mode    os.FileMode `json:"mode,omitempty"`
	Content string      `json:"buf"`

	// Force overwrites an existing file with different content.
	Force bool `json:"force"`
}

// PlanCreateFile plans writing content to path. A file that already holds
// content is planned Completed. A file with other content is an error
// unless force is set.
func PlanCreateFile(path, userName, groupName string, mode os.FileMode, content string, force bool) (*action.Stateful[*CreateFile], error) {
	a := &CreateFile{
		Path:    path,
		User:    userName,
		Group:   groupName,
		Mode:    mode,
		Content: content,
		Force:   force,
	}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return action.NewUncompleted(a), nil
	}
	if err != nil {
		return nil, action.Wrap(TagCreateFile, fmt.Errorf("failed to inspect %s: %w", path, err))
	}
	if !info.Mode().IsRegular() {
		return nil, action.Wrap(TagCreateFile, &ConflictError{Path: path, Reason: "exists and is not a regular file"})
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return nil, action.Wrap(TagCreateFile, fmt.Errorf("failed to read %s: %w", path, err))
	}

	sameMode := mode == 0 || info.Mode().Perm() == mode.Perm()
	if bytes.Equal(existing, []byte(content)) && sameMode {
		return action.NewCompleted(a), nil
	}
	if !force {
		return nil, action.Wrap(TagCreateFile, &ConflictError{Path: path, Reason: "exists with different content or mode"})
	}
	return action.NewUncompleted(a), nil
}

// Tag implements action.Action.
func (a *CreateFile) Tag() action.Tag { return TagCreateFile }

// Synopsis implements action.Action.
func (a *CreateFile) Synopsis() string {
	return fmt.Sprintf("Create or overwrite file `%s`", a.Path)
}

// ExecuteDescription implements action.Action.
func (a *CreateFile) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// RevertDescription implements action.Action.
func (a *CreateFile) RevertDescription() []action.Description {
	return action.Describe(fmt.Sprintf("Delete file `%s`", a.Path))
}

// Execute writes the file through a temporary sibling and renames it into
// place.
func (a *CreateFile) Execute(ctx context.Context) error {
	dir := filepath.Dir(a.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(a.Content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	mode := a.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", tmpPath, err)
	}
	if err := setOwnership(tmpPath, a.User, a.Group); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, a.Path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", a.Path, err)
	}
	return nil
}

// Revert deletes the file, including one that already matched at plan time.
func (a *CreateFile) Revert(ctx context.Context) error {
	return removeIfExists(a.Path)
}

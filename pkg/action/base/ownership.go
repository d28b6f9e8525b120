package base

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"strconv"
)

// ConflictError reports host state that prevents planning an action.
type ConflictError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("`%s` %s", e.Path, e.Reason)
}

// lookupIDs resolves user and group names to numeric ids. Empty names map
// to -1, which leaves that id unchanged in a chown.
func lookupIDs(userName, groupName string) (int, int, error) {
	uid, gid := -1, -1

	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to look up user %q: %w", userName, err)
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return 0, 0, fmt.Errorf("invalid uid %q for user %q", u.Uid, userName)
		}
	}

	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to look up group %q: %w", groupName, err)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return 0, 0, fmt.Errorf("invalid gid %q for group %q", g.Gid, groupName)
		}
	}

	return uid, gid, nil
}

// setOwnership chowns path to userName and groupName without following a
// final symlink.
func setOwnership(path, userName, groupName string) error {
	if userName == "" && groupName == "" {
		return nil
	}

	uid, gid, err := lookupIDs(userName, groupName)
	if err != nil {
		return err
	}
	if err := os.Lchown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to set ownership of %s: %w", path, err)
	}
	return nil
}

// removeIfExists removes a single file or empty directory, ignoring a
// missing path.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

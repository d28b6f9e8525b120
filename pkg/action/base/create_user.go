package base

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/command"
)

// CreateUser creates a system build user.
type CreateUser struct {
	Name      string `json:"name"`
	UID       uint32 `json:"uid"`
	GroupName string `json:"groupname"`
	GID       uint32 `json:"gid"`
	Comment   string `json:"comment"`
}

// PlanCreateUser plans the creation of user name. A user with the same uid
// is planned Completed; a user with another uid is an error.
func PlanCreateUser(ctx context.Context, name string, uid uint32, groupName string, gid uint32, comment string) (*action.Stateful[*CreateUser], error) {
	a := &CreateUser{
		Name:      name,
		UID:       uid,
		GroupName: groupName,
		GID:       gid,
		Comment:   comment,
	}

	if _, ok := command.Which(ctx, "useradd", "adduser"); !ok {
		return nil, action.Wrap(TagCreateUser, errors.New("neither useradd nor adduser is available"))
	}
	if _, ok := command.Which(ctx, "userdel", "deluser"); !ok {
		return nil, action.Wrap(TagCreateUser, errors.New("neither userdel nor deluser is available"))
	}

	existing, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return action.NewUncompleted(a), nil
		}
		return nil, action.Wrap(TagCreateUser, fmt.Errorf("failed to look up user %q: %w", name, err))
	}

	if existing.Uid != strconv.FormatUint(uint64(uid), 10) {
		return nil, action.Wrap(TagCreateUser, &ConflictError{
			Path:   name,
			Reason: fmt.Sprintf("user exists with uid %s, expected %d", existing.Uid, uid),
		})
	}

	log.Debug().Str("user", name).Msg("Creating user already complete")
	return action.NewCompleted(a), nil
}

// Tag implements action.Action.
func (a *CreateUser) Tag() action.Tag { return TagCreateUser }

// Synopsis implements action.Action.
func (a *CreateUser) Synopsis() string {
	return fmt.Sprintf("Create user `%s` (UID %d) in group `%s` (GID %d)", a.Name, a.UID, a.GroupName, a.GID)
}

// ExecuteDescription implements action.Action.
func (a *CreateUser) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis(),
		"The nix daemon requires system users it can act as in order to build")
}

// RevertDescription implements action.Action.
func (a *CreateUser) RevertDescription() []action.Description {
	return action.Describe(fmt.Sprintf("Delete user `%s` (UID %d) in group `%s` (GID %d)", a.Name, a.UID, a.GroupName, a.GID),
		"The nix daemon requires system users it can act as in order to build")
}

// Execute runs useradd, or the busybox adduser where useradd is missing.
func (a *CreateUser) Execute(ctx context.Context) error {
	uid := strconv.FormatUint(uint64(a.UID), 10)
	gid := strconv.FormatUint(uint64(a.GID), 10)

	bin, ok := command.Which(ctx, "useradd", "adduser")
	if !ok {
		return errors.New("neither useradd nor adduser is available")
	}

	var cmd *command.Cmd
	if bin == "useradd" {
		cmd = command.New("useradd",
			"--system",
			"--no-create-home",
			"--home-dir", "/var/empty",
			"--comment", a.Comment,
			"--gid", gid,
			"--groups", a.GroupName,
			"--no-user-group",
			"--shell", "/sbin/nologin",
			"--uid", uid,
			a.Name,
		)
	} else {
		cmd = command.New("adduser",
			"-h", "/var/empty",
			"-H",
			"-g", a.Comment,
			"-G", a.GroupName,
			"-S",
			"-D",
			"-s", "/sbin/nologin",
			"-u", uid,
			a.Name,
		)
	}

	_, err := command.Run(ctx, cmd)
	return err
}

// Revert runs userdel, or deluser where userdel is missing. A user found at
// plan time is deleted as well.
func (a *CreateUser) Revert(ctx context.Context) error {
	bin, ok := command.Which(ctx, "userdel", "deluser")
	if !ok {
		return errors.New("neither userdel nor deluser is available")
	}
	_, err := command.Run(ctx, command.New(bin, a.Name))
	return err
}

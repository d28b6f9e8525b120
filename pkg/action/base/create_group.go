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

// CreateGroup creates a system group with a fixed gid.
type CreateGroup struct {
	Name string `json:"name"`
	GID  uint32 `json:"gid"`
}

// PlanCreateGroup plans the creation of group name. A group with the same
// gid is planned Completed; a group with another gid is an error.
func PlanCreateGroup(ctx context.Context, name string, gid uint32) (*action.Stateful[*CreateGroup], error) {
	a := &CreateGroup{Name: name, GID: gid}

	if _, ok := command.Which(ctx, "groupadd", "addgroup"); !ok {
		return nil, action.Wrap(TagCreateGroup, errors.New("neither groupadd nor addgroup is available"))
	}
	if _, ok := command.Which(ctx, "groupdel", "delgroup"); !ok {
		return nil, action.Wrap(TagCreateGroup, errors.New("neither groupdel nor delgroup is available"))
	}

	existing, err := user.LookupGroup(name)
	if err != nil {
		var unknown user.UnknownGroupError
		if errors.As(err, &unknown) {
			return action.NewUncompleted(a), nil
		}
		return nil, action.Wrap(TagCreateGroup, fmt.Errorf("failed to look up group %q: %w", name, err))
	}

	if existing.Gid != strconv.FormatUint(uint64(gid), 10) {
		return nil, action.Wrap(TagCreateGroup, &ConflictError{
			Path:   name,
			Reason: fmt.Sprintf("group exists with gid %s, expected %d", existing.Gid, gid),
		})
	}

	log.Debug().Str("group", name).Msg("Creating group already complete")
	return action.NewCompleted(a), nil
}

// Tag implements action.Action.
func (a *CreateGroup) Tag() action.Tag { return TagCreateGroup }

// Synopsis implements action.Action.
func (a *CreateGroup) Synopsis() string {
	return fmt.Sprintf("Create group `%s` (GID %d)", a.Name, a.GID)
}

// ExecuteDescription implements action.Action.
func (a *CreateGroup) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis(),
		"The nix daemon requires a system user group its system users can be part of")
}

// RevertDescription implements action.Action.
func (a *CreateGroup) RevertDescription() []action.Description {
	return action.Describe(fmt.Sprintf("Delete group `%s` (GID %d)", a.Name, a.GID),
		"The nix daemon requires a system user group its system users can be part of")
}

// Execute runs groupadd, or addgroup where groupadd is missing.
func (a *CreateGroup) Execute(ctx context.Context) error {
	gid := strconv.FormatUint(uint64(a.GID), 10)

	bin, ok := command.Which(ctx, "groupadd", "addgroup")
	if !ok {
		return errors.New("neither groupadd nor addgroup is available")
	}
	_, err := command.Run(ctx, command.New(bin, "-g", gid, "--system", a.Name))
	return err
}

// Revert runs groupdel, or delgroup where groupdel is missing. A group found
// at plan time is deleted as well.
func (a *CreateGroup) Revert(ctx context.Context) error {
	bin, ok := command.Which(ctx, "groupdel", "delgroup")
	if !ok {
		return errors.New("neither groupdel nor delgroup is available")
	}
	_, err := command.Run(ctx, command.New(bin, a.Name))
	return err
}

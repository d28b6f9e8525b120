package common

import (
	"context"
	"fmt"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/action/base"
)

// CreateUsersAndGroup creates the build group and its build users.
type CreateUsersAndGroup struct {
	GroupName  string `json:"nix_build_group_name"`
	GroupID    uint32 `json:"nix_build_group_id"`
	UserPrefix string `json:"nix_build_user_prefix"`
	UserCount  uint32 `json:"nix_build_user_count"`
	UserIDBase uint32 `json:"nix_build_user_id_base"`

	CreateGroup *action.Stateful[*base.CreateGroup] `json:"create_group"`
	CreateUsers action.Children                     `json:"create_users"`
}

// UsersOptions configure PlanCreateUsersAndGroup.
type UsersOptions struct {
	GroupName  string
	GroupID    uint32
	UserPrefix string
	UserCount  uint32
	UserIDBase uint32
}

// PlanCreateUsersAndGroup plans the group and users prefix1..prefixN with
// uids base+1..base+N.
func PlanCreateUsersAndGroup(ctx context.Context, opts UsersOptions) (*action.Stateful[*CreateUsersAndGroup], error) {
	group, err := base.PlanCreateGroup(ctx, opts.GroupName, opts.GroupID)
	if err != nil {
		return nil, action.Wrap(TagCreateUsersAndGroup, err)
	}

	var users action.Children
	for i := uint32(1); i <= opts.UserCount; i++ {
		u, err := base.PlanCreateUser(ctx,
			fmt.Sprintf("%s%d", opts.UserPrefix, i),
			opts.UserIDBase+i,
			opts.GroupName,
			opts.GroupID,
			fmt.Sprintf("Nix build user %d", i),
		)
		if err != nil {
			return nil, action.Wrap(TagCreateUsersAndGroup, err)
		}
		users = append(users, action.Erase(u))
	}

	return action.NewUncompleted(&CreateUsersAndGroup{
		GroupName:   opts.GroupName,
		GroupID:     opts.GroupID,
		UserPrefix:  opts.UserPrefix,
		UserCount:   opts.UserCount,
		UserIDBase:  opts.UserIDBase,
		CreateGroup: group,
		CreateUsers: users,
	}), nil
}

// Tag implements action.Action.
func (a *CreateUsersAndGroup) Tag() action.Tag { return TagCreateUsersAndGroup }

// Synopsis implements action.Action.
func (a *CreateUsersAndGroup) Synopsis() string {
	return fmt.Sprintf("Create build users (UID %d-%d) and group (GID %d)",
		a.UserIDBase+1, a.UserIDBase+a.UserCount, a.GroupID)
}

// ExecuteDescription implements action.Action.
func (a *CreateUsersAndGroup) ExecuteDescription() []action.Description {
	explanation := []string{
		"The Nix daemon requires system users (and a group they share) which it can act as in order to build",
	}
	explanation = append(explanation, action.Explanations(a.CreateGroup.DescribeExecute())...)
	explanation = append(explanation, action.Explanations(a.CreateUsers.ExecuteDescription())...)
	return action.Describe(a.Synopsis(), explanation...)
}

// RevertDescription implements action.Action.
func (a *CreateUsersAndGroup) RevertDescription() []action.Description {
	explanation := action.Explanations(a.CreateUsers.RevertDescription())
	explanation = append(explanation, action.Explanations(a.CreateGroup.DescribeRevert())...)
	return action.Describe(fmt.Sprintf("Delete users %s1-%s%d (UID %d-%d) and group %s (GID %d)",
		a.UserPrefix, a.UserPrefix, a.UserCount, a.UserIDBase+1, a.UserIDBase+a.UserCount, a.GroupName, a.GroupID),
		explanation...)
}

// Execute creates the group, then the users.
func (a *CreateUsersAndGroup) Execute(ctx context.Context) error {
	if err := a.CreateGroup.TryExecute(ctx); err != nil {
		return err
	}
	return a.CreateUsers.Execute(ctx)
}

// Revert deletes the users, then the group. A group delete is attempted even
// when some users could not be removed.
func (a *CreateUsersAndGroup) Revert(ctx context.Context) error {
	var errs []error
	if err := a.CreateUsers.Revert(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.CreateGroup.TryRevert(ctx); err != nil {
		errs = append(errs, err)
	}
	return action.JoinErrors(errs)
}

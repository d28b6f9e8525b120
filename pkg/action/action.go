// Package action defines the unit of work the installer executes and reverts.
//
// Every concrete action is wrapped in a Stateful, which tracks whether its
// effect currently holds on the host. Plans are ordered lists of erased
// wrappers; the engine only ever calls TryExecute and TryRevert on them.
package action

import (
	"context"
)

// Tag is the stable name of a concrete action. It is written into receipts
// as the action_name discriminator and must not change between versions.
type Tag string

// String returns the tag as a string.
func (t Tag) String() string {
	return string(t)
}

// Action is one revertible effect on the host.
//
// Execute and Revert are called at most once per state transition of the
// owning Stateful. Composite actions own child wrappers and forward to them.
type Action interface {
	// Tag returns the stable tag of the concrete type.
	Tag() Tag

	// Synopsis is a one line summary for logs.
	Synopsis() string

	// ExecuteDescription describes what Execute will do, for humans only.
	ExecuteDescription() []Description

	// RevertDescription describes what Revert will do, for humans only.
	RevertDescription() []Description

	// Execute applies the effect.
	Execute(ctx context.Context) error

	// Revert undoes the effect.
	Revert(ctx context.Context) error
}

// Description is a headline plus optional supporting lines.
type Description struct {
	Headline    string   `json:"headline"`
	Explanation []string `json:"explanation,omitempty"`
}

// Describe builds a single-element description list.
func Describe(headline string, explanation ...string) []Description {
	return []Description{{Headline: headline, Explanation: explanation}}
}

package action

import (
	"context"
)

// Children is an ordered list of child wrappers owned by a composite action.
type Children []*Stateful[Action]

// Execute runs each child in order and stops at the first failure.
func (c Children) Execute(ctx context.Context) error {
	for _, child := range c {
		if err := child.TryExecute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Revert reverts each child in reverse order, continuing past failures.
func (c Children) Revert(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].TryRevert(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return JoinErrors(errs)
}

// ExecuteDescription collects the pending execute descriptions of every child.
func (c Children) ExecuteDescription() []Description {
	var out []Description
	for _, child := range c {
		out = append(out, child.DescribeExecute()...)
	}
	return out
}

// RevertDescription collects the pending revert descriptions in revert order.
func (c Children) RevertDescription() []Description {
	var out []Description
	for i := len(c) - 1; i >= 0; i-- {
		out = append(out, c[i].DescribeRevert()...)
	}
	return out
}

// Explanations flattens the headlines of descs into explanation lines.
func Explanations(descs []Description) []string {
	lines := make([]string, 0, len(descs))
	for _, d := range descs {
		lines = append(lines, d.Headline)
	}
	return lines
}

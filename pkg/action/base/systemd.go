package base

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/command"
)

// SystemctlDaemonReload reloads the systemd manager configuration on both
// execute and revert.
type SystemctlDaemonReload struct{}

// PlanSystemctlDaemonReload plans a daemon-reload. systemctl must be on PATH.
func PlanSystemctlDaemonReload(ctx context.Context) (*action.Stateful[*SystemctlDaemonReload], error) {
	if _, ok := command.Which(ctx, "systemctl"); !ok {
		return nil, action.Wrap(TagSystemctlDaemonReload, errors.New("systemctl is not available"))
	}
	return action.NewUncompleted(&SystemctlDaemonReload{}), nil
}

// Tag implements action.Action.
func (a *SystemctlDaemonReload) Tag() action.Tag { return TagSystemctlDaemonReload }

// Synopsis implements action.Action.
func (a *SystemctlDaemonReload) Synopsis() string {
	return "Run `systemctl daemon-reload`"
}

// ExecuteDescription implements action.Action.
func (a *SystemctlDaemonReload) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// RevertDescription implements action.Action.
func (a *SystemctlDaemonReload) RevertDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// Execute implements action.Action.
func (a *SystemctlDaemonReload) Execute(ctx context.Context) error {
	return daemonReload(ctx)
}

// Revert implements action.Action.
func (a *SystemctlDaemonReload) Revert(ctx context.Context) error {
	return daemonReload(ctx)
}

func daemonReload(ctx context.Context) error {
	_, err := command.Run(ctx, command.New("systemctl", "daemon-reload"))
	return err
}

// unitActive reports whether systemctl is-active prints "active". A
// non-zero exit is the normal answer for an inactive unit.
func unitActive(ctx context.Context, unit string) (bool, error) {
	out, err := probe(ctx, "is-active", unit)
	if err != nil {
		return false, err
	}
	active := strings.HasPrefix(out, "active")
	log.Trace().Str("unit", unit).Bool("active", active).Msg("Probed unit")
	return active, nil
}

// unitEnabled reports whether systemctl is-enabled prints "enabled" or
// "linked".
func unitEnabled(ctx context.Context, unit string) (bool, error) {
	out, err := probe(ctx, "is-enabled", unit)
	if err != nil {
		return false, err
	}
	enabled := strings.HasPrefix(out, "enabled") || strings.HasPrefix(out, "linked")
	log.Trace().Str("unit", unit).Bool("enabled", enabled).Msg("Probed unit")
	return enabled, nil
}

func probe(ctx context.Context, verb, unit string) (string, error) {
	result, err := command.Run(ctx, command.New("systemctl", verb, unit))
	var exitErr *command.ExitError
	switch {
	case err == nil:
		return strings.TrimSpace(result.Stdout), nil
	case errors.As(err, &exitErr):
		return strings.TrimSpace(exitErr.Result.Stdout), nil
	default:
		return "", err
	}
}

func systemctl(ctx context.Context, args ...string) error {
	_, err := command.Run(ctx, command.New("systemctl", args...))
	return err
}

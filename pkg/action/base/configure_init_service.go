package base

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/command"
)

// InitSystem names the service manager the daemon is configured with.
type InitSystem string

const (
	// InitNone leaves the daemon unconfigured.
	InitNone InitSystem = "none"

	// InitSystemd links the daemon units into systemd.
	InitSystemd InitSystem = "systemd"
)

// ConfigureInitService links the daemon's service, socket and tmpfiles
// configuration into the init system and starts the socket.
type ConfigureInitService struct {
	Init         InitSystem `json:"init"`
	StartDaemon  bool       `json:"start_daemon"`
	ServiceSrc   string     `json:"service_src,omitempty"`
	ServiceDest  string     `json:"service_dest,omitempty"`
	SocketSrc    string     `json:"socket_src,omitempty"`
	SocketDest   string     `json:"socket_dest,omitempty"`
	TmpfilesSrc  string     `json:"tmpfiles_src,omitempty"`
	TmpfilesDest string     `json:"tmpfiles_dest,omitempty"`

	// StateDir is the prefix handed to systemd-tmpfiles.
	StateDir string `json:"state_dir,omitempty"`
}

// PlanConfigureInitService checks that the destinations are free or already
// link to their sources, and that systemctl is available for systemd.
func PlanConfigureInitService(ctx context.Context, a *ConfigureInitService) (*action.Stateful[*ConfigureInitService], error) {
	switch a.Init {
	case InitNone:
		return action.NewUncompleted(a), nil
	case InitSystemd:
	default:
		return nil, action.Wrap(TagConfigureInitService, fmt.Errorf("unsupported init system %q", a.Init))
	}

	if _, ok := command.Which(ctx, "systemctl"); !ok {
		return nil, action.Wrap(TagConfigureInitService, errors.New("systemd is not available: systemctl not found"))
	}

	for _, unit := range [][2]string{{a.ServiceSrc, a.ServiceDest}, {a.SocketSrc, a.SocketDest}} {
		if err := checkUnitDest(unit[0], unit[1]); err != nil {
			return nil, action.Wrap(TagConfigureInitService, err)
		}
	}
	return action.NewUncompleted(a), nil
}

// checkUnitDest fails when dest holds anything but a link to src, or when a
// drop-in override directory exists for it.
func checkUnitDest(src, dest string) error {
	info, err := os.Lstat(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to inspect %s: %w", dest, err)
	case info.Mode()&os.ModeSymlink == 0:
		return &ConflictError{Path: dest, Reason: "exists and is not a symlink"}
	default:
		target, err := os.Readlink(dest)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", dest, err)
		}
		if target != src {
			return &ConflictError{Path: dest, Reason: fmt.Sprintf("links to %s, not %s", target, src)}
		}
	}

	if _, err := os.Stat(dest + ".d"); err == nil {
		return &ConflictError{Path: dest + ".d", Reason: "overrides exist for the unit"}
	}
	return nil
}

// Tag implements action.Action.
func (a *ConfigureInitService) Tag() action.Tag { return TagConfigureInitService }

// Synopsis implements action.Action.
func (a *ConfigureInitService) Synopsis() string {
	if a.Init == InitSystemd {
		return "Configure Nix daemon related settings with systemd"
	}
	return "Leave the Nix daemon unconfigured"
}

func (a *ConfigureInitService) socketName() string  { return filepath.Base(a.SocketDest) }
func (a *ConfigureInitService) serviceName() string { return filepath.Base(a.ServiceDest) }

// ExecuteDescription implements action.Action.
func (a *ConfigureInitService) ExecuteDescription() []action.Description {
	if a.Init != InitSystemd {
		return nil
	}
	explanation := []string{
		fmt.Sprintf("Run `systemd-tmpfiles --create --prefix=%s`", a.StateDir),
		fmt.Sprintf("Symlink `%s` to `%s`", a.ServiceSrc, a.ServiceDest),
		fmt.Sprintf("Symlink `%s` to `%s`", a.SocketSrc, a.SocketDest),
		"Run `systemctl daemon-reload`",
	}
	if a.StartDaemon {
		explanation = append(explanation, fmt.Sprintf("Run `systemctl enable --now %s`", a.socketName()))
	}
	return action.Describe(a.Synopsis(), explanation...)
}

// RevertDescription implements action.Action.
func (a *ConfigureInitService) RevertDescription() []action.Description {
	if a.Init != InitSystemd {
		return nil
	}
	return action.Describe("Unconfigure Nix daemon related settings with systemd",
		fmt.Sprintf("Run `systemctl disable %s`", a.socketName()),
		fmt.Sprintf("Run `systemctl disable %s`", a.serviceName()),
		fmt.Sprintf("Run `systemd-tmpfiles --remove --prefix=%s`", a.StateDir),
		"Run `systemctl daemon-reload`")
}

// Execute stops any running daemon units, links the units and tmpfiles
// configuration, and enables the socket. The socket is started when
// StartDaemon is set or when it was running before.
func (a *ConfigureInitService) Execute(ctx context.Context) error {
	if a.Init != InitSystemd {
		return nil
	}

	socketWasActive := false
	for _, unit := range []string{a.socketName(), a.serviceName()} {
		active, err := unitActive(ctx, unit)
		if err != nil {
			return err
		}
		enabled, err := unitEnabled(ctx, unit)
		if err != nil {
			return err
		}
		switch {
		case enabled && active:
			err = systemctl(ctx, "disable", "--now", unit)
		case enabled:
			err = systemctl(ctx, "disable", unit)
		case active:
			err = systemctl(ctx, "stop", unit)
		}
		if err != nil {
			return err
		}
		if unit == a.socketName() {
			socketWasActive = active
		}
	}

	if _, err := os.Lstat(a.TmpfilesDest); errors.Is(err, fs.ErrNotExist) {
		if err := os.Symlink(a.TmpfilesSrc, a.TmpfilesDest); err != nil {
			return fmt.Errorf("failed to link %s: %w", a.TmpfilesDest, err)
		}
	}
	if _, err := command.Run(ctx, command.New("systemd-tmpfiles", "--create", "--prefix="+a.StateDir)); err != nil {
		return err
	}

	for _, unit := range [][2]string{{a.ServiceSrc, a.ServiceDest}, {a.SocketSrc, a.SocketDest}} {
		if err := placeUnit(unit[0], unit[1]); err != nil {
			return err
		}
	}

	if err := daemonReload(ctx); err != nil {
		return err
	}

	// Enabling by path avoids systemd rejecting the chain of symlinks into
	// the store on older releases.
	args := []string{"enable", a.SocketSrc}
	if a.StartDaemon || socketWasActive {
		args = append(args, "--now")
	}
	return systemctl(ctx, args...)
}

func placeUnit(src, dest string) error {
	if err := checkUnitDest(src, dest); err != nil {
		return err
	}
	if err := removeIfExists(dest); err != nil {
		return err
	}
	log.Trace().Str("src", src).Str("dest", dest).Msg("Symlinking")
	if err := os.Symlink(src, dest); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", dest, src, err)
	}
	return nil
}

// Revert stops and disables the units, removes the links and reloads
// systemd. Failures after the probes are collected and do not stop the
// remaining steps.
func (a *ConfigureInitService) Revert(ctx context.Context) error {
	if a.Init != InitSystemd {
		return nil
	}

	var errs []error
	for _, unit := range []string{a.socketName(), a.serviceName()} {
		active, err := unitActive(ctx, unit)
		if err != nil {
			return err
		}
		enabled, err := unitEnabled(ctx, unit)
		if err != nil {
			return err
		}
		if active {
			if err := systemctl(ctx, "stop", unit); err != nil {
				errs = append(errs, err)
			}
		}
		if enabled {
			if err := systemctl(ctx, "disable", unit); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if _, err := command.Run(ctx, command.New("systemd-tmpfiles", "--remove", "--prefix="+a.StateDir)); err != nil {
		errs = append(errs, err)
	}

	for _, path := range []string{a.TmpfilesDest, a.ServiceDest, a.SocketDest} {
		if err := removeIfExists(path); err != nil {
			errs = append(errs, err)
		}
	}

	if err := daemonReload(ctx); err != nil {
		errs = append(errs, err)
	}

	return action.JoinErrors(errs)
}

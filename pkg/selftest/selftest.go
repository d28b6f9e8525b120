// Package selftest verifies a finished installation: the daemon socket
// appears and nix runs from every available login shell.
package selftest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/command"
)

// DefaultShells are tried in order. Missing shells are skipped.
var DefaultShells = []string{"sh", "bash", "zsh", "fish"}

// Options configure Run.
type Options struct {
	// DaemonSocket is waited for before the shells run. Empty skips the wait.
	DaemonSocket string

	// SocketTimeout bounds the wait for DaemonSocket.
	SocketTimeout time.Duration

	// NixBin is the nix executable run from each shell.
	NixBin string

	// Shells overrides DefaultShells.
	Shells []string
}

// DefaultOptions returns the options for a default /nix installation with
// a started daemon.
func DefaultOptions() Options {
	return Options{
		DaemonSocket:  "/nix/var/nix/daemon-socket/socket",
		SocketTimeout: 10 * time.Second,
		NixBin:        "/nix/var/nix/profiles/default/bin/nix",
		Shells:        DefaultShells,
	}
}

// Failure is one failed check.
type Failure struct {
	// Check names what was verified: "socket" or a shell name.
	Check string

	// Err is the cause.
	Err error
}

// Error collects every failed check.
type Error struct {
	Failures []Failure
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "self test failed (%d):", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n* %s: %v", f.Check, f.Err)
	}
	return b.String()
}

// Unwrap returns the causes.
func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Run waits for the daemon socket, then runs `<shell> -lc '<nix> --version'`
// in each available shell. Every failure is reported in one *Error.
func Run(ctx context.Context, opts Options) error {
	var failures []Failure

	if opts.DaemonSocket != "" {
		if err := WaitForPath(ctx, opts.DaemonSocket, opts.SocketTimeout); err != nil {
			failures = append(failures, Failure{Check: "socket", Err: err})
		}
	}

	shells := opts.Shells
	if shells == nil {
		shells = DefaultShells
	}
	for _, shell := range shells {
		if _, ok := command.Which(ctx, shell); !ok {
			log.Debug().Str("shell", shell).Msg("Shell not found, skipping")
			continue
		}

		start := time.Now()
		_, err := command.Run(ctx, command.New(shell, "-lc", opts.NixBin+" --version"))
		if err != nil {
			failures = append(failures, Failure{Check: shell, Err: err})
			continue
		}
		log.Debug().Str("shell", shell).Dur("duration", time.Since(start)).Msg("Nix runs from login shell")
	}

	if len(failures) > 0 {
		return &Error{Failures: failures}
	}
	return nil
}

// WaitForPath returns once path exists. The parent directory is watched so
// that creation is seen without polling; it must exist.
func WaitForPath(ctx context.Context, path string, timeout time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	// Checked after Add so a creation in between is not missed.
	if _, err := os.Lstat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return fmt.Errorf("%s did not appear within %s", path, timeout)

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for %s", path)
			}
			if event.Op&fsnotify.Create != 0 && filepath.Clean(event.Name) == filepath.Clean(path) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for %s", path)
			}
			log.Warn().Err(err).Str("path", path).Msg("Watcher error")
		}
	}
}

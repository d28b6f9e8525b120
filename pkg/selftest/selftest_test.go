package selftest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/installer/pkg/command"
	"github.com/openfroyo/installer/pkg/command/commandtest"
)

func TestRunSkipsMissingShells(t *testing.T) {
	runner := &commandtest.FakeRunner{Available: map[string]bool{"sh": true, "bash": true}}
	ctx := runner.Context(context.Background())

	err := Run(ctx, Options{NixBin: "/nix/var/nix/profiles/default/bin/nix", Shells: DefaultShells})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sh -lc /nix/var/nix/profiles/default/bin/nix --version",
		"bash -lc /nix/var/nix/profiles/default/bin/nix --version",
	}, runner.Lines())
}

func TestRunCollectsFailures(t *testing.T) {
	runner := &commandtest.FakeRunner{
		Available: map[string]bool{"sh": true, "bash": true, "zsh": true},
		Handler: func(cmd *command.Cmd) (*command.Result, error) {
			if cmd.Name == "sh" {
				return &command.Result{}, nil
			}
			return commandtest.Fail(cmd, 127, "nix: command not found")
		},
	}
	ctx := runner.Context(context.Background())

	err := Run(ctx, Options{
		DaemonSocket:  filepath.Join(t.TempDir(), "missing", "socket"),
		SocketTimeout: 50 * time.Millisecond,
		NixBin:        "nix",
	})

	var selfTestErr *Error
	require.ErrorAs(t, err, &selfTestErr)
	require.Len(t, selfTestErr.Failures, 3)
	assert.Equal(t, "socket", selfTestErr.Failures[0].Check)
	assert.Equal(t, "bash", selfTestErr.Failures[1].Check)
	assert.Equal(t, "zsh", selfTestErr.Failures[2].Check)

	var exitErr *command.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestWaitForPathExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	assert.NoError(t, WaitForPath(context.Background(), path, time.Second))
}

func TestWaitForPathCreatedLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, nil, 0o644)
	}()

	assert.NoError(t, WaitForPath(context.Background(), path, 5*time.Second))
}

func TestWaitForPathTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")

	err := WaitForPath(context.Background(), path, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not appear")
}

func TestWaitForPathCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForPath(ctx, filepath.Join(t.TempDir(), "socket"), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

// Package commandtest provides a recording command.Runner for tests.
package commandtest

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/openfroyo/installer/pkg/command"
)

// FakeRunner records every command and answers through Handler.
type FakeRunner struct {
	mu    sync.Mutex
	calls []command.Cmd

	// Available lists the executables LookPath finds. A nil map means every
	// name is found.
	Available map[string]bool

	// Handler produces the result for a command. A nil Handler succeeds with
	// empty output.
	Handler func(cmd *command.Cmd) (*command.Result, error)
}

// Run records cmd and delegates to Handler.
func (f *FakeRunner) Run(_ context.Context, cmd *command.Cmd) (*command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *cmd)
	f.mu.Unlock()

	if f.Handler != nil {
		return f.Handler(cmd)
	}
	return &command.Result{}, nil
}

// LookPath reports names listed in Available.
func (f *FakeRunner) LookPath(name string) (string, error) {
	if f.Available == nil || f.Available[name] {
		return "/usr/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []command.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]command.Cmd, len(f.calls))
	copy(out, f.calls)
	return out
}

// Lines returns the recorded commands as "name arg..." strings.
func (f *FakeRunner) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i := range calls {
		lines[i] = Line(&calls[i])
	}
	return lines
}

// Line joins a command name and its arguments with single spaces.
func Line(cmd *command.Cmd) string {
	return strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")
}

// Fail returns a command.ExitError for cmd with the given exit code.
func Fail(cmd *command.Cmd, code int, stderr string) (*command.Result, error) {
	result := &command.Result{ExitCode: code, Stderr: stderr}
	return result, &command.ExitError{Command: cmd.String(), Result: result}
}

// Context returns ctx carrying f.
func (f *FakeRunner) Context(ctx context.Context) context.Context {
	return command.WithRunner(ctx, f)
}

// Package command runs host processes for actions and package tools.
//
// Actions never call os/exec directly. They resolve a Runner from their
// context so tests can substitute a recording fake without touching the host.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Cmd describes one process invocation.
type Cmd struct {
	// Name is the executable name or path.
	Name string

	// Args are the arguments, not including Name.
	Args []string

	// Env holds variables added to the inherited environment.
	Env map[string]string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Stdin, when non-nil, is written to the process standard input.
	Stdin []byte
}

// New returns a Cmd for name and args.
func New(name string, args ...string) *Cmd {
	return &Cmd{Name: name, Args: args}
}

// WithEnv sets an environment variable and returns the command.
func (c *Cmd) WithEnv(key, value string) *Cmd {
	if c.Env == nil {
		c.Env = make(map[string]string)
	}
	c.Env[key] = value
	return c
}

// WithStdin sets the standard input and returns the command.
func (c *Cmd) WithStdin(data []byte) *Cmd {
	c.Stdin = data
	return c
}

// String renders the command line for logs and errors.
func (c *Cmd) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\"'\\$`") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Result is the outcome of a process that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExitError is returned when a process exits with a non-zero status.
type ExitError struct {
	// Command is the rendered command line.
	Command string

	// Result holds the captured output.
	Result *Result
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command `%s` exited with code %d", e.Command, e.Result.ExitCode)
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += ", stderr:\n" + stderr
	}
	return msg
}

// StartError is returned when a process could not be started at all.
type StartError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start `%s`: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error {
	return e.Err
}

// Runner executes commands and locates executables.
type Runner interface {
	// Run executes cmd to completion. A non-zero exit yields *ExitError.
	Run(ctx context.Context, cmd *Cmd) (*Result, error)

	// LookPath resolves an executable name like exec.LookPath.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

// Run executes cmd with os/exec, capturing stdout and stderr.
func (ExecRunner) Run(ctx context.Context, c *Cmd) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)

	if c.Dir != "" {
		cmd.Dir = c.Dir
	}

	if len(c.Env) > 0 {
		env := os.Environ()
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, c.Env[k]))
		}
		cmd.Env = env
	}

	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Trace().Str("command", c.String()).Msg("Executing")

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Command: c.String(), Result: result}
		}
		return nil, &StartError{Command: c.String(), Err: err}
	}

	log.Trace().
		Str("command", c.String()).
		Dur("duration", result.Duration).
		Msg("Command succeeded")

	return result, nil
}

// LookPath wraps exec.LookPath.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

type runnerContextKey struct{}

// WithRunner returns a context carrying r.
func WithRunner(ctx context.Context, r Runner) context.Context {
	return context.WithValue(ctx, runnerContextKey{}, r)
}

// FromContext returns the Runner carried by ctx, or an ExecRunner.
func FromContext(ctx context.Context) Runner {
	if r, ok := ctx.Value(runnerContextKey{}).(Runner); ok {
		return r
	}
	return ExecRunner{}
}

// Run executes cmd with the Runner carried by ctx.
func Run(ctx context.Context, cmd *Cmd) (*Result, error) {
	return FromContext(ctx).Run(ctx, cmd)
}

// Which returns the first of names found on PATH by the context Runner.
func Which(ctx context.Context, names ...string) (string, bool) {
	r := FromContext(ctx)
	for _, name := range names {
		if _, err := r.LookPath(name); err == nil {
			return name, true
		}
	}
	return "", false
}

// Package shell runs external commands and captures their output. Every
// subprocess forksync starts (git, node, npm, the test command) goes through
// a Runner so that callers can be exercised against a scripted fake.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single process invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	// Env entries are appended to the current process environment.
	Env []string
	// Stream, when set, receives combined output while the command runs.
	Stream io.Writer
}

// String renders the command line for log output.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// OK reports whether the command exited zero.
func (r *Result) OK() bool { return r.ExitCode == 0 }

// Runner executes commands.
type Runner interface {
	// Run executes cmd. A non-zero exit is reported through Result.ExitCode
	// with a nil error; the error return is reserved for failures to start
	// or wait for the process.
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct{}

// Run starts the process and waits for it to finish.
func (ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	if c.Stream != nil {
		cmd.Stdout = io.MultiWriter(c.Stream, &stdoutBuf)
		cmd.Stderr = io.MultiWriter(c.Stream, &stderrBuf)
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()
	res := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("running %s: %w", c.Name, err)
	}
	return res, nil
}

// Output runs cmd and returns trimmed stdout, turning a non-zero exit into an
// error that carries the command's combined output.
func Output(ctx context.Context, r Runner, c Command) (string, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", &ExitError{Cmd: c.String(), Code: res.ExitCode, Output: strings.TrimSpace(res.Combined())}
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ExitError is returned by Output when a command exits non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d\n%s", e.Cmd, e.Code, e.Output)
}

// Package command runs the external programs vmw wraps (qemu-img, ssh,
// rsync, scp, virsh, virt-viewer).
//
// Two modes are supported. Output captures stdout and stderr and is used for
// commands whose result vmw parses or only needs to check. Interactive
// attaches the caller's terminal and is used for shells, file transfers and
// passthrough commands where the user talks to the program directly.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Cmd describes one invocation of an external program.
type Cmd struct {
	Name  string
	Args  []string
	Stdin io.Reader
}

// String renders the command line for logs and error messages.
func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes external programs.
//
// In production this is satisfied by *Exec. Tests use fakes that record the
// commands instead of running them.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, cmd Cmd) ([]byte, error)

	// Interactive runs the command with the process's stdio attached.
	Interactive(ctx context.Context, cmd Cmd) error
}

// ExitError reports a program that ran and exited with a non-zero status.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with status %d: %s", e.Cmd, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s exited with status %d", e.Cmd, e.Code)
}

// Exec runs commands with os/exec.
type Exec struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExec returns a runner wired to the process's stdio.
func NewExec() *Exec {
	return &Exec{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Output runs cmd and returns stdout. On failure the returned error carries
// the trimmed stderr output.
func (e *Exec) Output(ctx context.Context, cmd Cmd) ([]byte, error) {
	log.Debugf("exec: %s", cmd)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return stdout.Bytes(), wrapError(cmd, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Interactive runs cmd attached to the runner's stdio.
func (e *Exec) Interactive(ctx context.Context, cmd Cmd) error {
	log.Debugf("exec (interactive): %s", cmd)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stdin = e.Stdin
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}
	c.Stdout = e.Stdout
	c.Stderr = e.Stderr

	if err := c.Run(); err != nil {
		return wrapError(cmd, err, "")
	}
	return nil
}

func wrapError(cmd Cmd, err error, stderr string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Debugf("cmd failed: %s rc: %d stderr: %s", cmd, exitErr.ExitCode(), stderr)
		return &ExitError{Cmd: cmd.Name, Code: exitErr.ExitCode(), Stderr: stderr}
	}
	return fmt.Errorf("failed to run %s: %w", cmd.Name, err)
}

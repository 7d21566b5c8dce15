package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner executes a dump or restore command and blocks until the
// process exits.
type CommandRunner interface {
	Run(ctx context.Context, command string, env []string) error
}

// RunnerFunc adapts a function to the CommandRunner interface.
type RunnerFunc func(ctx context.Context, command string, env []string) error

func (f RunnerFunc) Run(ctx context.Context, command string, env []string) error {
	return f(ctx, command, env)
}

// ShellRunner runs commands through `sh -c`, so the pipelines and
// redirections produced by the command builder work as written. The env
// overlay is appended to the inherited environment; stdout and stderr are
// fully drained before the process is treated as complete.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command string, env []string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

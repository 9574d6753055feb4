package extract

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// ExecRunner runs tools as child processes sharing the caller's stdio
type ExecRunner struct {
	// Timeout bounds a single tool invocation, zero means no deadline
	Timeout time.Duration
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewExecRunner returns an ExecRunner wired to the process stdio
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run starts argv in dir and waits for it to exit
func (r *ExecRunner) Run(ctx context.Context, dir string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(ErrToolTimeout, "%s after %s", argv[0], r.Timeout)
	}
	return err
}

// AutoRunner prefers installed tools and falls back to the builtin
// implementation for tools that are missing from PATH
type AutoRunner struct {
	Exec    Runner
	Builtin *BuiltinRunner
}

// Run dispatches argv to Exec or Builtin
func (r *AutoRunner) Run(ctx context.Context, dir string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil && r.Builtin.Supports(argv[0]) {
		return r.Builtin.Run(ctx, dir, argv)
	}
	return r.Exec.Run(ctx, dir, argv)
}

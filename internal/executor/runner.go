package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait keeps reading output after the child was
// killed, in case a grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// RunResult is what a finished child produced.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int

	// Started is true once the process was created, even if it was later
	// killed.
	Started bool
}

// Runner starts a process and waits for it. A non-nil error means the
// process could not be started or did not finish on its own; a process
// that ran and exited non-zero is not an error.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (RunResult, error)
}

// ExecRunner runs commands with os/exec. The child gets its own process
// group, and cancellation kills the whole group.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string) (RunResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // the command line is assembled from profiles and validated targets
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1}, err
	}

	err := cmd.Wait()
	result := RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Started: true, ExitCode: -1}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		// Killed by the context, not a normal exit.
		return result, ctx.Err()
	}
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return result, nil
	}
	return result, err
}

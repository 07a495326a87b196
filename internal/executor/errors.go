package executor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCommand is returned for a command with no arguments.
	ErrEmptyCommand = errors.New("empty command")

	// ErrTimeout is returned when a child is killed for exceeding its
	// time limit.
	ErrTimeout = errors.New("command timed out")
)

// ExecutionError reports a command that could not be launched or did not
// finish on its own.
type ExecutionError struct {
	Command []string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

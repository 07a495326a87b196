package main

import (
	"errors"
	"strings"
)

// Process exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitFailures = 3
)

// exitCodeError carries the process exit code for an error.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// usageError marks err as a usage or configuration problem (exit code 2).
func usageError(err error) error {
	return &exitCodeError{code: exitUsage, err: err}
}

// failuresError reports a completed run with failed records (exit code 3).
func failuresError(err error) error {
	return &exitCodeError{code: exitFailures, err: err}
}

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ece *exitCodeError
	if errors.As(err, &ece) {
		return ece.code
	}
	// cobra reports unknown commands and bad argument counts as plain errors.
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") {
		return exitUsage
	}
	return exitError
}

//go:build !unix

package executor

import "os/exec"

// setProcessGroup is a no-op; only the direct child is killed on
// cancellation, and WaitDelay bounds the wait for its pipes.
func setProcessGroup(*exec.Cmd) {}

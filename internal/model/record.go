package model

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// ExecutionRecord describes one external command run against one target.
// It is created when the command is invoked and is not modified after the
// command terminates.
type ExecutionRecord struct {
	// Target is the normalized target the command ran against.
	Target string `json:"target"`

	// Module is the reconnaissance module (ports or subdomains).
	Module Module `json:"module"`

	// Tool is the executable that was run, without the proxy launcher.
	Tool string `json:"tool"`

	// Command is the full command vector, including the proxy launcher.
	Command []string `json:"command"`

	// Identity is the exit identity recorded for this command.
	Identity Identity `json:"identity"`

	// Status is derived from the command outcome by module-specific rules.
	Status Status `json:"status"`

	// Output is the trimmed stdout of modules whose output is kept verbatim.
	Output string `json:"output,omitempty"`

	// Count is the number of results for modules that produce a list.
	Count *int `json:"count,omitempty"`

	// Data holds the result lines for modules that produce a list.
	Data []string `json:"data,omitempty"`

	// ExitCode is the child process exit code, or -1 if it never started.
	ExitCode int `json:"exit_code"`

	// Error describes a launch failure or a non-zero exit.
	Error string `json:"error,omitempty"`

	// Rotated reports whether a circuit rotation succeeded before this command.
	Rotated bool `json:"rotated"`

	// RotationError is set when a requested rotation failed.
	RotationError string `json:"rotation_error,omitempty"`

	// StartedAt is when the command was launched.
	StartedAt time.Time `json:"started_at"`

	// DurationMS is the wall-clock run time of the command in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Digest is the hex SHA3-256 of the target, module, command and identity.
	Digest string `json:"digest"`
}

// SetCount records a result count.
func (r *ExecutionRecord) SetCount(n int) {
	r.Count = &n
}

// ComputeDigest returns the SHA3-256 digest binding the command to the
// identity it ran under. Fields are separated by NUL bytes so that
// different splits of the same text cannot collide.
func (r *ExecutionRecord) ComputeDigest() string {
	var b strings.Builder
	b.WriteString(r.Target)
	b.WriteByte(0)
	b.WriteString(string(r.Module))
	b.WriteByte(0)
	b.WriteString(strings.Join(r.Command, "\x1f"))
	b.WriteByte(0)
	b.WriteString(r.Identity.String())

	sum := sha3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Seal fills in the digest. It must be called once all fields that take
// part in the digest are final.
func (r *ExecutionRecord) Seal() {
	r.Digest = r.ComputeDigest()
}

// Verify reports whether the stored digest matches the record contents.
func (r *ExecutionRecord) Verify() bool {
	return r.Digest != "" && r.Digest == r.ComputeDigest()
}

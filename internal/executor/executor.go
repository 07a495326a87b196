package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/torrecon/internal/config"
	"github.com/nao1215/torrecon/internal/model"
)

// torsocksDefaultSocks is the endpoint torsocks uses without -a/-P.
const torsocksDefaultSocks = "127.0.0.1:9050"

// IdentitySource reports the current egress identity.
type IdentitySource interface {
	Current(ctx context.Context) model.Identity
}

// Outcome is the result of one Execute call.
type Outcome struct {
	// Command is the full command line that was launched, launcher included.
	Command []string

	Stdout string
	Stderr string

	// ExitCode is the child's exit status, or -1 if it never started or
	// was killed.
	ExitCode int

	// Started is true when the child process was created. A child killed
	// by a timeout or cancellation was started.
	Started bool

	// Err is an *ExecutionError when the child could not be launched or was
	// killed; nil otherwise, including for non-zero exits.
	Err error

	// Identity is the egress identity observed just before launch.
	Identity model.Identity

	StartedAt time.Time
	Duration  time.Duration
}

// Executor runs commands under the proxy launcher.
type Executor struct {
	prefix   []string
	identity IdentitySource
	runner   Runner
	timeout  time.Duration
	audit    io.Writer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunner replaces the os/exec runner.
func WithRunner(r Runner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithTimeout limits each child process. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithAuditWriter sets where the "[identity] $ command" line is printed.
// Pass io.Discard to silence it.
func WithAuditWriter(w io.Writer) Option {
	return func(e *Executor) {
		e.audit = w
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New returns an Executor that wraps commands with launcher, pointed at the
// SOCKS endpoint in proxy.
func New(proxy config.ProxyConfig, launcher string, identity IdentitySource, opts ...Option) *Executor {
	e := &Executor{
		prefix:   LauncherPrefix(proxy, launcher),
		identity: identity,
		runner:   ExecRunner{},
		audit:    os.Stdout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LauncherPrefix returns the launcher and its flags. torsocks is told the
// SOCKS host and port only when they differ from its built-in default, and
// -i is added when per-command isolation is requested.
func LauncherPrefix(proxy config.ProxyConfig, launcher string) []string {
	prefix := []string{launcher}
	if proxy.SocksAddress != torsocksDefaultSocks {
		if host, port, err := net.SplitHostPort(proxy.SocksAddress); err == nil {
			prefix = append(prefix, "-a", host, "-P", port)
		}
	}
	if proxy.Isolate {
		prefix = append(prefix, "-i")
	}
	return prefix
}

// Wrap returns the launched command line for base. base is not modified.
func (e *Executor) Wrap(base []string) []string {
	full := make([]string, 0, len(e.prefix)+len(base))
	full = append(full, e.prefix...)
	return append(full, base...)
}

// Execute samples the identity, writes the audit line and runs base under
// the launcher. It always returns an Outcome.
func (e *Executor) Execute(ctx context.Context, base []string) Outcome {
	full := e.Wrap(base)
	out := Outcome{Command: full, ExitCode: -1}

	if len(base) == 0 {
		out.Identity = model.UnknownIdentity
		out.Err = &ExecutionError{Command: full, Err: ErrEmptyCommand}
		return out
	}

	out.Identity = e.identity.Current(ctx)
	e.writeAudit(out.Identity, base, full)

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out.StartedAt = e.now()
	res, err := e.runner.Run(runCtx, full[0], slices.Clone(full[1:]))
	out.Duration = e.now().Sub(out.StartedAt)
	out.Stdout = string(res.Stdout)
	out.Stderr = string(res.Stderr)
	out.ExitCode = res.ExitCode
	out.Started = res.Started || err == nil

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		out.Err = &ExecutionError{Command: full, Err: err}
		e.logger.Warn("command failed", "command", ShellJoin(full), "error", err)
		return out
	}

	e.logger.Debug("command finished",
		"command", ShellJoin(full),
		"exit_code", out.ExitCode,
		"duration", out.Duration,
	)
	return out
}

func (e *Executor) writeAudit(id model.Identity, base, full []string) {
	if e.audit != nil {
		fmt.Fprintf(e.audit, "[%s] $ %s\n", id, ShellJoin(base))
	}
	e.logger.Info("exec", "identity", id.String(), "command", ShellJoin(full))
}

// ShellJoin renders args as a POSIX shell command line.
func ShellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shellQuote leaves common safe characters unquoted and single-quotes
// everything else. An embedded single quote closes the quoting, is
// escaped with a backslash and reopens it.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		}
		return true
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/nao1215/torrecon/internal/model"
	"github.com/nao1215/torrecon/internal/tor"
	"golang.org/x/sync/errgroup"
)

// ErrSkipped marks a check that was not configured.
var ErrSkipped = errors.New("check skipped")

// ProxyChecker verifies the SOCKS listener.
type ProxyChecker interface {
	CheckConnection(ctx context.Context) tor.ProxyStatus
}

// ControlAuthenticator authenticates to the control port.
type ControlAuthenticator interface {
	CheckAuth() error
}

// IdentityLookup queries the current exit identity.
type IdentityLookup interface {
	Lookup(ctx context.Context) (model.Identity, error)
}

// LookPathFunc finds an executable in PATH.
type LookPathFunc func(file string) (string, error)

// Result is the outcome of one check.
type Result struct {
	// Name identifies the check, for example "socks" or "binary:nmap".
	Name string

	// Detail is a short human-readable description of what was found.
	Detail string

	// Err is nil when the check passed.
	Err error

	// Duration is how long the check took.
	Duration time.Duration
}

// OK reports whether the check passed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Skipped reports whether the check was not run.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, ErrSkipped)
}

// Report holds the results in a fixed order: socks, control, binaries,
// identity.
type Report struct {
	Results []Result
}

// OK reports whether every check that ran passed.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK() && !res.Skipped() {
			return false
		}
	}
	return true
}

// Failed returns the checks that ran and failed.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() && !res.Skipped() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Checker runs the preflight checks.
type Checker struct {
	proxy       ProxyChecker
	control     ControlAuthenticator
	identity    IdentityLookup
	binaries    []string
	lookPath    LookPathFunc
	concurrency int
	logger      *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithBinaries sets the executables that must be in PATH.
func WithBinaries(names ...string) Option {
	return func(c *Checker) {
		c.binaries = names
	}
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn LookPathFunc) Option {
	return func(c *Checker) {
		c.lookPath = fn
	}
}

// WithConcurrency limits how many checks run at once.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker. Any of proxy, control and identity may be nil, in
// which case that check is reported as skipped.
func New(proxy ProxyChecker, control ControlAuthenticator, identity IdentityLookup, opts ...Option) *Checker {
	c := &Checker{
		proxy:       proxy,
		control:     control,
		identity:    identity,
		lookPath:    exec.LookPath,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// Run executes all checks and returns their results. It only returns early
// when ctx is cancelled, in which case unfinished checks carry ctx.Err().
func (c *Checker) Run(ctx context.Context) Report {
	checks := c.checks()
	results := make([]Result, len(checks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, chk := range checks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Name: chk.name, Err: err}
				return nil
			}

			start := time.Now()
			detail, err := chk.run(ctx)
			results[i] = Result{
				Name:     chk.name,
				Detail:   detail,
				Err:      err,
				Duration: time.Since(start),
			}

			if err != nil && !errors.Is(err, ErrSkipped) {
				c.logger.Debug("preflight check failed", "check", chk.name, "error", err)
			} else {
				c.logger.Debug("preflight check done", "check", chk.name, "detail", detail)
			}
			// A failed check must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // checks never return errors

	return Report{Results: results}
}

func (c *Checker) checks() []check {
	checks := []check{
		{name: "socks", run: c.checkSOCKS},
		{name: "control", run: c.checkControl},
	}
	for _, bin := range c.binaries {
		checks = append(checks, check{
			name: "binary:" + bin,
			run: func(context.Context) (string, error) {
				path, err := c.lookPath(bin)
				if err != nil {
					return "", fmt.Errorf("%s not found in PATH: %w", bin, err)
				}
				return path, nil
			},
		})
	}
	return append(checks, check{name: "identity", run: c.checkIdentity})
}

func (c *Checker) checkSOCKS(ctx context.Context) (string, error) {
	if c.proxy == nil {
		return "", ErrSkipped
	}
	status := c.proxy.CheckConnection(ctx)
	if status != tor.ProxyStatusOK {
		return status.String(), status.Error()
	}
	return "SOCKS5 proxy accepted a CONNECT request", nil
}

func (c *Checker) checkControl(context.Context) (string, error) {
	if c.control == nil {
		return "", ErrSkipped
	}
	if err := c.control.CheckAuth(); err != nil {
		return "", err
	}
	return "cookie authentication succeeded", nil
}

func (c *Checker) checkIdentity(ctx context.Context) (string, error) {
	if c.identity == nil {
		return "", ErrSkipped
	}
	id, err := c.identity.Lookup(ctx)
	if err != nil {
		return "", err
	}
	return "exit identity " + id.String(), nil
}

package tor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nao1215/tornago"
	"github.com/nao1215/torrecon/internal/config"
)

// DefaultCookiePaths are the places system Tor packages put the control
// auth cookie, in the order they are tried.
var DefaultCookiePaths = []string{
	"/run/tor/control.authcookie",
	"/var/run/tor/control.authcookie",
	"/var/lib/tor/control_auth_cookie",
}

// ControlSession is one authenticated conversation with the control port.
type ControlSession interface {
	Authenticate() error
	NewIdentity(ctx context.Context) error
	Close()
}

// ControlDialer opens a control session using cookie authentication.
type ControlDialer func(address, cookiePath string, timeout time.Duration) (ControlSession, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Rotator requests a fresh Tor circuit through the control port.
type Rotator struct {
	address    string
	cookiePath string
	candidates []string
	timeout    time.Duration
	cooldown   time.Duration
	dial       ControlDialer
	sleep      Sleeper
	logger     *slog.Logger
}

// RotatorOption configures a Rotator.
type RotatorOption func(*Rotator)

// WithCooldown sets the wait after a successful NEWNYM.
func WithCooldown(d time.Duration) RotatorOption {
	return func(r *Rotator) {
		r.cooldown = d
	}
}

// WithControlDialer replaces the tornago control client.
func WithControlDialer(dial ControlDialer) RotatorOption {
	return func(r *Rotator) {
		r.dial = dial
	}
}

// WithSleeper replaces the cooldown sleep.
func WithSleeper(sleep Sleeper) RotatorOption {
	return func(r *Rotator) {
		r.sleep = sleep
	}
}

// WithCookieCandidates replaces DefaultCookiePaths.
func WithCookieCandidates(paths []string) RotatorOption {
	return func(r *Rotator) {
		r.candidates = paths
	}
}

// WithRotatorLogger sets the logger.
func WithRotatorLogger(logger *slog.Logger) RotatorOption {
	return func(r *Rotator) {
		r.logger = logger
	}
}

// NewRotator creates a Rotator for the control endpoint in cfg.
func NewRotator(cfg config.ProxyConfig, opts ...RotatorOption) *Rotator {
	r := &Rotator{
		address:    cfg.ControlAddress,
		cookiePath: cfg.CookiePath,
		candidates: DefaultCookiePaths,
		timeout:    cfg.ControlTimeout,
		cooldown:   config.DefaultCooldown,
		dial:       dialTornago,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.timeout <= 0 {
		r.timeout = config.DefaultControlTimeout
	}
	return r
}

// Rotate authenticates to the control port, sends NEWNYM and waits for the
// cooldown. Any failure before the cooldown is a *RotationError. If ctx is
// cancelled during the cooldown the new circuit was requested and ctx.Err()
// is returned.
func (r *Rotator) Rotate(ctx context.Context) error {
	cookie, err := r.CookiePath()
	if err != nil {
		return &RotationError{Stage: StageAuth, Err: err}
	}

	session, err := r.dial(r.address, cookie, r.timeout)
	if err != nil {
		return &RotationError{Stage: StageDial, Err: err}
	}
	defer session.Close()

	if err := session.Authenticate(); err != nil {
		return &RotationError{Stage: StageAuth, Err: err}
	}
	if err := session.NewIdentity(ctx); err != nil {
		return &RotationError{Stage: StageSignal, Err: err}
	}

	r.logger.Debug("requested new circuit", "control", r.address, "cooldown", r.cooldown)
	if r.cooldown <= 0 {
		return nil
	}
	return r.sleep(ctx, r.cooldown)
}

// CheckAuth authenticates to the control port without changing the circuit.
// Failures are reported as *RotationError with the stage that failed.
func (r *Rotator) CheckAuth() error {
	cookie, err := r.CookiePath()
	if err != nil {
		return &RotationError{Stage: StageAuth, Err: err}
	}

	session, err := r.dial(r.address, cookie, r.timeout)
	if err != nil {
		return &RotationError{Stage: StageDial, Err: err}
	}
	defer session.Close()

	if err := session.Authenticate(); err != nil {
		return &RotationError{Stage: StageAuth, Err: err}
	}
	return nil
}

// CookiePath returns the configured cookie if set, otherwise the first
// candidate that exists on disk.
func (r *Rotator) CookiePath() (string, error) {
	if r.cookiePath != "" {
		if _, err := os.Stat(r.cookiePath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrCookieNotFound, r.cookiePath)
		}
		return r.cookiePath, nil
	}
	for _, p := range r.candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrCookieNotFound
}

// tornagoSession adapts *tornago.ControlClient to ControlSession.
type tornagoSession struct {
	client *tornago.ControlClient
}

func (s tornagoSession) Authenticate() error {
	return s.client.Authenticate()
}

func (s tornagoSession) NewIdentity(ctx context.Context) error {
	return s.client.NewIdentity(ctx)
}

func (s tornagoSession) Close() {
	s.client.Close() //nolint:errcheck // nothing to do on close failure
}

func dialTornago(address, cookiePath string, timeout time.Duration) (ControlSession, error) {
	auth := tornago.ControlAuthFromCookie(cookiePath)
	client, err := tornago.NewControlClient(address, auth, timeout)
	if err != nil {
		return nil, err
	}
	return tornagoSession{client: client}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package tor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nao1215/tornago"
	"github.com/nao1215/torrecon/internal/config"
)

// cookieFileName is where tornago's daemon writes its control cookie,
// relative to the data directory.
const cookieFileName = "control_auth_cookie"

// EmbeddedTor manages a private Tor daemon started through tornago. It
// exposes both a SOCKS listener for the wrapped tools and a control port
// with cookie authentication for the rotator.
//
// Bootstrapping takes one to three minutes on a cold start.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	cookiePath     string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates a new embedded Tor manager.
// Call Start() to actually launch the Tor daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: config.DefaultTorStartupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout expires.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return ctx.Err()
	default:
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	e.cookiePath = filepath.Join(process.DataDir(), cookieFileName)
	return nil
}

// Stop shuts the daemon down. It is safe to call more than once.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the SOCKS5 address, or "" if not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" if not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// CookiePath returns the control auth cookie, or "" if not running.
func (e *EmbeddedTor) CookiePath() string {
	return e.cookiePath
}

// IsRunning returns true if the embedded Tor daemon is currently running.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// ProxyConfig returns base with the SOCKS, control and cookie settings
// replaced by the running daemon's.
func (e *EmbeddedTor) ProxyConfig(base config.ProxyConfig) (config.ProxyConfig, error) {
	if !e.IsRunning() {
		return base, ErrEmbeddedNotRunning
	}
	base.SocksAddress = e.socksAddr
	base.ControlAddress = e.controlAddr
	base.CookiePath = e.cookiePath
	return base, nil
}

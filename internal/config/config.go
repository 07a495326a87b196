package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/torrecon/internal/model"
)

// Default configuration values.
const (
	// DefaultSocksAddress is the standard Tor SOCKS5 proxy address.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution and
	// IPv6 surprises on some systems.
	DefaultSocksAddress = "127.0.0.1:9050"

	// DefaultControlAddress is the standard Tor control port address.
	DefaultControlAddress = "127.0.0.1:9051"

	// DefaultIdentityURL returns the caller's address as plain text.
	DefaultIdentityURL = "https://icanhazip.com"

	// DefaultIdentityTimeout bounds one identity lookup through Tor.
	DefaultIdentityTimeout = 15 * time.Second

	// DefaultCooldown is how long to wait after NEWNYM before sending
	// traffic, so that the new circuit is fully built.
	DefaultCooldown = 5 * time.Second

	// DefaultControlTimeout bounds the control port round trip.
	DefaultControlTimeout = 10 * time.Second

	// DefaultLauncher is the SOCKS-aware wrapper prepended to every command.
	DefaultLauncher = "torsocks"

	// DefaultOutputDir is where result files are written.
	DefaultOutputDir = "output"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "torrecon"
)

// ProxyScheme selects where hostnames are resolved.
type ProxyScheme string

const (
	// SchemeSOCKS5H passes hostnames to Tor, which resolves them at the exit.
	// No DNS query leaves the machine outside Tor.
	SchemeSOCKS5H ProxyScheme = "socks5h"

	// SchemeSOCKS5 resolves hostnames locally and sends only IP addresses
	// through Tor. The local resolver sees every lookup, so DNS leaks
	// outside the anonymity network.
	SchemeSOCKS5 ProxyScheme = "socks5"
)

// RemoteDNS reports whether hostnames are resolved by the proxy.
func (s ProxyScheme) RemoteDNS() bool {
	return s == SchemeSOCKS5H
}

// ProxyConfig describes how to reach Tor. It is built once at startup and
// passed by value to every component that talks to the proxy, so that the
// identity check and the wrapped tools use the same route.
type ProxyConfig struct {
	// Scheme selects remote (socks5h) or local (socks5) name resolution.
	Scheme ProxyScheme

	// SocksAddress is the Tor SOCKS5 listener in host:port form.
	SocksAddress string

	// ControlAddress is the Tor control port in host:port form.
	ControlAddress string

	// CookiePath is the control port authentication cookie. When empty the
	// rotator looks for the cookie in the usual system locations.
	CookiePath string

	// IdentityURL is the "what is my address" endpoint.
	IdentityURL string

	// IdentityTimeout bounds one identity lookup.
	IdentityTimeout time.Duration

	// ControlTimeout bounds the control port round trip.
	ControlTimeout time.Duration

	// Isolate asks torsocks to give each command its own circuit.
	Isolate bool
}

// NewProxyConfig returns a ProxyConfig with default values.
func NewProxyConfig() ProxyConfig {
	return ProxyConfig{
		Scheme:          SchemeSOCKS5H,
		SocksAddress:    DefaultSocksAddress,
		ControlAddress:  DefaultControlAddress,
		IdentityURL:     DefaultIdentityURL,
		IdentityTimeout: DefaultIdentityTimeout,
		ControlTimeout:  DefaultControlTimeout,
	}
}

// Info returns the subset of the proxy configuration stored in reports.
func (p ProxyConfig) Info() *model.ProxyInfo {
	return &model.ProxyInfo{
		Scheme:  string(p.Scheme),
		Socks:   p.SocksAddress,
		Control: p.ControlAddress,
	}
}

// Validate checks the proxy configuration.
func (p ProxyConfig) Validate() error {
	if p.Scheme != SchemeSOCKS5H && p.Scheme != SchemeSOCKS5 {
		return ErrInvalidScheme
	}
	if !IsValidAddress(p.SocksAddress) || !IsValidAddress(p.ControlAddress) {
		return ErrInvalidProxyAddress
	}
	if p.IdentityTimeout <= 0 {
		return ErrInvalidIdentityTimeout
	}
	return nil
}

// Config holds all configuration options for a torrecon run.
// It is populated from defaults, the configuration file, environment
// variables and CLI flags, in increasing order of precedence, and passed
// through the application rather than kept in global state.
type Config struct {
	// Proxy describes the Tor endpoints.
	Proxy ProxyConfig

	// Profile is the selected scan profile.
	Profile model.ProfileName

	// Targets are the targets to process, in order.
	Targets []string

	// Campaign is true when Targets came from --campaign.
	Campaign bool

	// Modules are the reconnaissance modules to run per target.
	Modules []model.Module

	// Explain prints profile metadata and exits without running anything.
	Explain bool

	// Cooldown is the wait after a successful NEWNYM.
	Cooldown time.Duration

	// Launcher is the proxy-wrapping executable.
	Launcher string

	// ExecTimeout bounds each child process. Zero means no limit, in which
	// case a hung tool hangs the whole run.
	ExecTimeout time.Duration

	// IdentitySampling selects whether record identities are taken before
	// or after the command runs.
	IdentitySampling model.IdentitySampling

	// OutputDir is where result files are written. Created if absent.
	OutputDir string

	// Markdown also writes a Markdown summary next to the JSON file.
	Markdown bool

	// SaveHistory stores each report in the history database.
	SaveHistory bool

	// DBDir is the directory holding the history database.
	DBDir string

	// Strict makes the CLI exit non-zero when any record failed.
	Strict bool

	// UseEmbeddedTor starts a private Tor daemon instead of using the
	// system one. The daemon's SOCKS and control addresses replace those
	// in Proxy.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the configuration file that was loaded, if any.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Proxy:             NewProxyConfig(),
		Profile:           model.DefaultProfile,
		Cooldown:          DefaultCooldown,
		Launcher:          DefaultLauncher,
		IdentitySampling:  model.SampleAfter,
		OutputDir:         DefaultOutputDir,
		SaveHistory:       true,
		DBDir:             XDGDataDir(),
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for torrecon.
// On Linux: ~/.local/share/torrecon
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for torrecon.
// On Linux: ~/.config/torrecon
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found. Explain mode needs nothing but a known profile.
func (c *Config) Validate() error {
	if _, err := model.ParseProfileName(string(c.Profile)); err != nil {
		return err
	}
	if c.Explain {
		return nil
	}

	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if len(c.Modules) == 0 {
		return ErrNoModule
	}
	for _, m := range c.Modules {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	if err := c.Proxy.Validate(); err != nil {
		return err
	}
	if c.Cooldown < 0 {
		return ErrInvalidCooldown
	}
	if c.ExecTimeout < 0 {
		return ErrInvalidExecTimeout
	}
	if c.IdentitySampling != model.SampleAfter && c.IdentitySampling != model.SampleBefore {
		return ErrInvalidSampling
	}
	if c.Launcher == "" {
		return ErrEmptyLauncher
	}
	if c.OutputDir == "" {
		return ErrEmptyOutputDir
	}
	return nil
}

// IsValidAddress reports whether address is host:port with a non-empty
// host and a port between 1 and 65535.
func IsValidAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

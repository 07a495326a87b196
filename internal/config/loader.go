package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/torrecon/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".torrecon"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .torrecon configuration file.
// Every field is optional; zero values leave the defaults in place.
type File struct {
	// Profile is the default scan profile name.
	Profile string `yaml:"profile,omitempty"`

	// OutputDir is the default result directory.
	OutputDir string `yaml:"output_dir,omitempty"`

	// Markdown enables the Markdown summary by default.
	Markdown bool `yaml:"markdown,omitempty"`

	// Proxy overrides proxy settings.
	Proxy ProxyFile `yaml:"proxy,omitempty"`

	// Rotation overrides circuit rotation settings.
	Rotation RotationFile `yaml:"rotation,omitempty"`

	// Exec overrides command execution settings.
	Exec ExecFile `yaml:"exec,omitempty"`
}

// ProxyFile holds the proxy section of the configuration file.
type ProxyFile struct {
	Scheme          string        `yaml:"scheme,omitempty"`
	Socks           string        `yaml:"socks,omitempty"`
	Control         string        `yaml:"control,omitempty"`
	Cookie          string        `yaml:"cookie,omitempty"`
	IdentityURL     string        `yaml:"identity_url,omitempty"`
	IdentityTimeout time.Duration `yaml:"identity_timeout,omitempty"`
	Isolate         bool          `yaml:"isolate,omitempty"`
}

// RotationFile holds the rotation section of the configuration file.
type RotationFile struct {
	Cooldown *time.Duration `yaml:"cooldown,omitempty"`
	Sampling string         `yaml:"identity_sampling,omitempty"`
}

// ExecFile holds the exec section of the configuration file.
type ExecFile struct {
	Launcher string        `yaml:"launcher,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// LoadConfigFile loads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Apply copies every value set in the file into cfg.
func (f *File) Apply(cfg *Config) {
	if f.Profile != "" {
		cfg.Profile = model.ProfileName(f.Profile)
	}
	if f.OutputDir != "" {
		cfg.OutputDir = f.OutputDir
	}
	if f.Markdown {
		cfg.Markdown = true
	}

	if f.Proxy.Scheme != "" {
		cfg.Proxy.Scheme = ProxyScheme(f.Proxy.Scheme)
	}
	if f.Proxy.Socks != "" {
		cfg.Proxy.SocksAddress = f.Proxy.Socks
	}
	if f.Proxy.Control != "" {
		cfg.Proxy.ControlAddress = f.Proxy.Control
	}
	if f.Proxy.Cookie != "" {
		cfg.Proxy.CookiePath = f.Proxy.Cookie
	}
	if f.Proxy.IdentityURL != "" {
		cfg.Proxy.IdentityURL = f.Proxy.IdentityURL
	}
	if f.Proxy.IdentityTimeout != 0 {
		cfg.Proxy.IdentityTimeout = f.Proxy.IdentityTimeout
	}
	if f.Proxy.Isolate {
		cfg.Proxy.Isolate = true
	}

	// A pointer so that an explicit zero cooldown can be configured.
	if f.Rotation.Cooldown != nil {
		cfg.Cooldown = *f.Rotation.Cooldown
	}
	if f.Rotation.Sampling != "" {
		cfg.IdentitySampling = model.IdentitySampling(f.Rotation.Sampling)
	}

	if f.Exec.Launcher != "" {
		cfg.Launcher = f.Exec.Launcher
	}
	if f.Exec.Timeout != 0 {
		cfg.ExecTimeout = f.Exec.Timeout
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .torrecon in the current directory
// 3. Look for config.yaml in the XDG config directory
// 4. Look for .torrecon in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

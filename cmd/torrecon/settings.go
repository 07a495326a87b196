package main

import (
	"fmt"
	"strings"

	"github.com/nao1215/torrecon/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of environment overrides, e.g. TORRECON_SOCKS.
const envPrefix = "TORRECON"

// addProxyFlags registers the flags shared by scan and check.
func addProxyFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("config", "c", "",
		"Configuration file path (default: .torrecon in current or home directory)")
	fs.String("socks", config.DefaultSocksAddress, "Tor SOCKS5 proxy address")
	fs.String("control", config.DefaultControlAddress, "Tor control port address")
	fs.String("cookie", "", "Control port auth cookie (default: search the usual system paths)")
	fs.String("scheme", string(config.SchemeSOCKS5H),
		"Proxy scheme: socks5h resolves names through Tor, socks5 resolves locally and leaks DNS")
	fs.String("identity-url", config.DefaultIdentityURL, "Endpoint that returns the caller's address")
	fs.Duration("identity-timeout", config.DefaultIdentityTimeout, "Timeout for one identity lookup")
	fs.Bool("isolate", false, "Ask torsocks to isolate each command on its own circuit")
	fs.String("launcher", config.DefaultLauncher, "SOCKS-aware launcher prepended to every command")
	fs.Bool("embedded-tor", false, "Start a private Tor daemon instead of using the system one")
	fs.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")
}

// newSettings layers TORRECON_* environment variables under the command's
// flags. A value is "set" when its flag was given or its variable exists.
func newSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// loadBaseConfig returns defaults overlaid by the configuration file, then
// the environment, then flags, for the settings scan and check share.
func loadBaseConfig(cmd *cobra.Command) (*config.Config, *viper.Viper, error) {
	v, err := newSettings(cmd)
	if err != nil {
		return nil, nil, err
	}

	cfg := config.NewConfig()
	explicit := v.GetString("config")
	path := config.FindConfigFile(explicit)
	switch {
	case path != "":
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, nil, usageError(fmt.Errorf("failed to load config file %s: %w", path, err))
		}
		f.Apply(cfg)
		cfg.ConfigFilePath = path
	case explicit != "":
		return nil, nil, usageError(fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicit))
	}

	applyProxySettings(v, cfg)
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, v, nil
}

func applyProxySettings(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("socks") {
		cfg.Proxy.SocksAddress = v.GetString("socks")
	}
	if v.IsSet("control") {
		cfg.Proxy.ControlAddress = v.GetString("control")
	}
	if v.IsSet("cookie") {
		cfg.Proxy.CookiePath = v.GetString("cookie")
	}
	if v.IsSet("scheme") {
		cfg.Proxy.Scheme = config.ProxyScheme(strings.ToLower(v.GetString("scheme")))
	}
	if v.IsSet("identity-url") {
		cfg.Proxy.IdentityURL = v.GetString("identity-url")
	}
	if v.IsSet("identity-timeout") {
		cfg.Proxy.IdentityTimeout = v.GetDuration("identity-timeout")
	}
	if v.IsSet("isolate") {
		cfg.Proxy.Isolate = v.GetBool("isolate")
	}
	if v.IsSet("launcher") {
		cfg.Launcher = v.GetString("launcher")
	}
	if v.IsSet("embedded-tor") {
		cfg.UseEmbeddedTor = v.GetBool("embedded-tor")
	}
	if v.IsSet("tor-timeout") {
		cfg.TorStartupTimeout = v.GetDuration("tor-timeout")
	}
}

// splitList flattens comma-separated and repeated values and drops blanks.
// Environment variables arrive as a single "a,b" string.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/nao1215/torrecon/internal/config"
	"github.com/nao1215/torrecon/internal/model"
	"github.com/nao1215/torrecon/internal/preflight"
	"github.com/nao1215/torrecon/internal/tor"
	"github.com/spf13/cobra"
)

// errPreflightFailed is returned when at least one check failed.
var errPreflightFailed = errors.New("preflight checks failed")

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the Tor proxy, control port and required tools",
		Long: `Check runs the preflight checks concurrently and prints one line per check:

  socks     the SOCKS listener answers a SOCKS5 CONNECT
  control   the control port accepts the auth cookie (no new circuit is requested)
  binary:*  the launcher, nmap and subfinder are in PATH
  identity  the identity endpoint answers through Tor

It exits non-zero when any check fails.

Examples:
  torrecon check
  torrecon check --socks 127.0.0.1:9150 --control 127.0.0.1:9151
  torrecon check --embedded-tor`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	addProxyFlags(cmd)
	cmd.Flags().Bool("skip-identity", false, "Do not query the identity endpoint")

	return cmd
}

func runCheckCmd(cmd *cobra.Command, _ []string) error {
	cfg, v, err := loadBaseConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Proxy.Validate(); err != nil {
		return usageError(fmt.Errorf("configuration error: %w", err))
	}
	if cfg.Launcher == "" {
		return usageError(fmt.Errorf("configuration error: %w", config.ErrEmptyLauncher))
	}

	logger := setupLogger(cmd)
	ctx := cmd.Context()

	proxy := cfg.Proxy
	if cfg.UseEmbeddedTor {
		embedded, err := startEmbeddedTor(ctx, cfg, logger, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer embedded.Stop() //nolint:errcheck // best effort cleanup
		if proxy, err = embedded.ProxyConfig(proxy); err != nil {
			return err
		}
	}

	checker, err := newChecker(proxy, cfg.Launcher, v.GetBool("skip-identity"), logger)
	if err != nil {
		return err
	}

	result := checker.Run(ctx)
	printPreflight(cmd.OutOrStdout(), result)
	if !result.OK() {
		return errPreflightFailed
	}
	return nil
}

func newChecker(proxy config.ProxyConfig, launcher string, skipIdentity bool, logger *slog.Logger) (*preflight.Checker, error) {
	client, err := tor.NewClient(proxy)
	if err != nil {
		return nil, usageError(err)
	}

	var identity preflight.IdentityLookup
	if !skipIdentity {
		identity = tor.NewIdentityProvider(client, tor.WithIdentityLogger(logger))
	}
	rotator := tor.NewRotator(proxy, tor.WithRotatorLogger(logger))

	binaries := []string{launcher}
	for _, m := range []model.Module{model.ModulePorts, model.ModuleSubdomains} {
		binaries = append(binaries, m.Tool())
	}

	return preflight.New(client, rotator, identity,
		preflight.WithBinaries(binaries...),
		preflight.WithLogger(logger),
	), nil
}

func printPreflight(w io.Writer, result preflight.Report) {
	ok := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	skip := color.New(color.FgYellow)

	for _, r := range result.Results {
		switch {
		case r.Skipped():
			skip.Fprintf(w, "[-] %-18s skipped\n", r.Name)
		case r.OK():
			ok.Fprintf(w, "[+] %-18s %s\n", r.Name, r.Detail)
		default:
			fail.Fprintf(w, "[x] %-18s %v\n", r.Name, r.Err)
		}
	}

	if failed := result.Failed(); len(failed) > 0 {
		fail.Fprintf(w, "\n%d check(s) failed\n", len(failed))
		return
	}
	ok.Fprintln(w, "\nAll checks passed")
}

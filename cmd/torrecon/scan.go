package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/nao1215/torrecon/internal/config"
	"github.com/nao1215/torrecon/internal/database"
	"github.com/nao1215/torrecon/internal/executor"
	"github.com/nao1215/torrecon/internal/model"
	"github.com/nao1215/torrecon/internal/profile"
	"github.com/nao1215/torrecon/internal/recon"
	"github.com/nao1215/torrecon/internal/report"
	"github.com/nao1215/torrecon/internal/tor"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Run reconnaissance modules against a target through Tor",
		Long: `Scan runs the selected modules against one target, or against every target
of a campaign, with each command wrapped by torsocks.

Modules:
  --ports   port scan with nmap, using the profile's nmap flags
  --subs    subdomain enumeration with subfinder

Profiles:
  stealth   low-rate TCP connect scan, no circuit rotation (default)
  paranoid  slower scan, new Tor circuit before every target
  connect   common ports only, no circuit rotation

Every command is logged with the Tor exit address observed for it. Exit
addresses are best-effort: Tor may use a different circuit for some of the
tool's connections.

Examples:
  # Port scan one target
  torrecon scan example.com --ports

  # Ports and subdomains with the paranoid profile
  torrecon scan example.com --ports --subs --profile paranoid

  # Campaign over several targets (ports module unless another is given)
  torrecon scan --campaign a.example,b.example

  # Show what a profile does without running anything
  torrecon scan --explain --profile paranoid

Every flag can also be set with a TORRECON_ environment variable, for
example TORRECON_SOCKS=127.0.0.1:9150. Flags win over the environment,
which wins over the configuration file.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usageError(fmt.Errorf("accepts at most one target, received %d (use --campaign for several)", len(args)))
			}
			return nil
		},
		RunE: runScanCmd,
	}

	addProxyFlags(cmd)

	cmd.Flags().Bool("ports", false, "Run the port scan module (nmap)")
	cmd.Flags().Bool("subs", false, "Run the subdomain enumeration module (subfinder)")
	cmd.Flags().StringSlice("campaign", nil, "Scan several targets in one run (comma-separated or repeated)")
	cmd.Flags().StringP("profile", "p", string(model.DefaultProfile), "Scan profile: stealth, paranoid or connect")
	cmd.Flags().Bool("explain", false, "Print what the profile does and exit without scanning")
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir, "Directory for result files")
	cmd.Flags().Bool("markdown", false, "Also write a Markdown summary next to the JSON result")
	cmd.Flags().Bool("json", false, "Print the run report as JSON instead of the text summary")
	cmd.Flags().Duration("cooldown", config.DefaultCooldown, "Wait after requesting a new circuit")
	cmd.Flags().String("identity-sampling", string(model.SampleAfter),
		"When to record the exit identity: after or before each command")
	cmd.Flags().Duration("exec-timeout", 0, "Kill a command after this long (0 means no limit)")
	cmd.Flags().Bool("no-history", false, "Do not store the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")
	cmd.Flags().Bool("strict", false, "Exit with code 3 when any command failed")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScanConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)

	registry := profile.NewRegistry()
	if err := registry.Validate(); err != nil {
		return err
	}
	prof, err := registry.Lookup(cfg.Profile)
	if err != nil {
		return usageError(err)
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	if cfg.Explain {
		return explainProfile(cmd.OutOrStdout(), cfg, prof, asJSON)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, stopping after the current command")
			cancel()
		case <-ctx.Done():
		}
	}()

	console := cmd.OutOrStdout()
	if asJSON {
		console = cmd.ErrOrStderr()
	}
	deps := defaultScanDeps(cmd.OutOrStdout(), console)
	deps.jsonOutput = asJSON

	return runScan(ctx, cfg, prof, logger, deps)
}

// buildScanConfig creates the scan configuration from defaults, the
// configuration file, the environment and flags.
func buildScanConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, v, err := loadBaseConfig(cmd)
	if err != nil {
		return nil, err
	}

	if v.IsSet("profile") {
		cfg.Profile = model.ProfileName(strings.ToLower(v.GetString("profile")))
	}
	if v.IsSet("output-dir") {
		cfg.OutputDir = v.GetString("output-dir")
	}
	if v.IsSet("markdown") {
		cfg.Markdown = v.GetBool("markdown")
	}
	if v.IsSet("cooldown") {
		cfg.Cooldown = v.GetDuration("cooldown")
	}
	if v.IsSet("identity-sampling") {
		cfg.IdentitySampling = model.IdentitySampling(strings.ToLower(v.GetString("identity-sampling")))
	}
	if v.IsSet("exec-timeout") {
		cfg.ExecTimeout = v.GetDuration("exec-timeout")
	}
	if v.IsSet("no-history") {
		cfg.SaveHistory = !v.GetBool("no-history")
	}
	if v.IsSet("db-dir") {
		cfg.DBDir = v.GetString("db-dir")
	}
	cfg.Strict = v.GetBool("strict")
	cfg.Explain = v.GetBool("explain")

	if v.GetBool("ports") {
		cfg.Modules = append(cfg.Modules, model.ModulePorts)
	}
	if v.GetBool("subs") {
		cfg.Modules = append(cfg.Modules, model.ModuleSubdomains)
	}

	campaign := splitList(v.GetStringSlice("campaign"))
	switch {
	case len(campaign) > 0 && len(args) > 0:
		return nil, usageError(fmt.Errorf("give either a target or --campaign, not both"))
	case len(campaign) > 0:
		cfg.Targets = campaign
		cfg.Campaign = true
		if len(cfg.Modules) == 0 {
			cfg.Modules = []model.Module{model.ModulePorts}
		}
	case len(args) == 1:
		cfg.Targets = args
	}

	if !cfg.Explain && len(cfg.Targets) > 0 {
		normalized, err := model.NormalizeTargets(cfg.Targets)
		if err != nil {
			return nil, usageError(err)
		}
		cfg.Targets = normalized
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError(fmt.Errorf("configuration error: %w\nRun 'torrecon scan --help' for usage", err))
	}
	return cfg, nil
}

// scanDeps holds the collaborators of a scan that tests replace.
type scanDeps struct {
	// stdout receives the final report or summary.
	stdout io.Writer

	// console receives audit lines and progress messages.
	console io.Writer

	// jsonOutput prints the report as JSON instead of the text summary.
	jsonOutput bool

	// runner runs child processes; nil means os/exec.
	runner executor.Runner

	identity   func(config.ProxyConfig, *slog.Logger) (recon.IdentitySource, error)
	rotator    func(config.ProxyConfig, time.Duration, *slog.Logger) recon.Rotator
	proxyCheck func(context.Context, config.ProxyConfig) tor.ProxyStatus
	now        func() time.Time
}

func defaultScanDeps(stdout, console io.Writer) scanDeps {
	return scanDeps{
		stdout:  stdout,
		console: console,
		identity: func(p config.ProxyConfig, logger *slog.Logger) (recon.IdentitySource, error) {
			provider, err := tor.NewIdentityProviderFromConfig(p, tor.WithIdentityLogger(logger))
			if err != nil {
				return nil, err
			}
			return provider, nil
		},
		rotator: func(p config.ProxyConfig, cooldown time.Duration, logger *slog.Logger) recon.Rotator {
			return tor.NewRotator(p, tor.WithCooldown(cooldown), tor.WithRotatorLogger(logger))
		},
		proxyCheck: func(ctx context.Context, p config.ProxyConfig) tor.ProxyStatus {
			client, err := tor.NewClient(p)
			if err != nil {
				return tor.ProxyStatusCannotConnect
			}
			return client.CheckConnection(ctx)
		},
		now: time.Now,
	}
}

// runScan executes the run and writes its results. Per-command failures
// are recorded in the report; only setup problems return early.
func runScan(ctx context.Context, cfg *config.Config, prof model.ScanProfile, logger *slog.Logger, deps scanDeps) error {
	warn := color.New(color.FgYellow)

	proxy := cfg.Proxy
	if cfg.UseEmbeddedTor {
		embedded, err := startEmbeddedTor(ctx, cfg, logger, deps.console)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		if proxy, err = embedded.ProxyConfig(proxy); err != nil {
			return err
		}
	}

	if status := deps.proxyCheck(ctx, proxy); status != tor.ProxyStatusOK {
		logger.Warn("tor proxy check failed", "socks", proxy.SocksAddress, "status", status.String())
		warn.Fprintf(deps.console, "[!] Tor proxy at %s: %s. Commands will likely fail.\n", proxy.SocksAddress, status)
	}
	if !proxy.Scheme.RemoteDNS() {
		warn.Fprintln(deps.console, "[!] Scheme socks5 resolves names locally; DNS queries leave the machine outside Tor.")
	}

	identity, err := deps.identity(proxy, logger)
	if err != nil {
		return fmt.Errorf("failed to create identity provider: %w", err)
	}

	var rotator recon.Rotator
	if prof.RotatePerTarget {
		rotator = deps.rotator(proxy, cfg.Cooldown, logger)
	}

	execOpts := []executor.Option{
		executor.WithAuditWriter(deps.console),
		executor.WithLogger(logger),
		executor.WithTimeout(cfg.ExecTimeout),
	}
	if deps.runner != nil {
		execOpts = append(execOpts, executor.WithRunner(deps.runner))
	}
	exec := executor.New(proxy, cfg.Launcher, identity, execOpts...)

	coordinator := recon.New(prof, cfg.Modules, exec, identity, rotator,
		recon.WithLogger(logger),
		recon.WithSampling(cfg.IdentitySampling),
		recon.WithProxyInfo(proxy.Info()),
		recon.WithClock(deps.now),
	)

	var (
		runReport *model.RunReport
		runErr    error
	)
	if cfg.Campaign {
		fmt.Fprintf(deps.console, "=== CAMPAIGN MODE: %d targets, profile %s ===\n", len(cfg.Targets), prof.Name)
		runReport, runErr = coordinator.RunCampaign(ctx, cfg.Targets)
	} else {
		runReport, runErr = coordinator.RunTarget(ctx, cfg.Targets[0])
	}

	paths, err := report.NewSink(cfg.OutputDir, report.WithMarkdown(cfg.Markdown)).Write(runReport)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if cfg.SaveHistory {
		// The run may have been interrupted; the partial report is still kept.
		saveHistory(context.WithoutCancel(ctx), cfg.DBDir, runReport, logger)
	}

	if err := printRunSummary(deps, runReport, paths); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("scan interrupted: %w", runErr)
	}
	if cfg.Strict && runReport.HasFailures() {
		return failuresError(fmt.Errorf("%d of %d command(s) failed",
			runReport.Summary()[model.StatusFailed], len(runReport.Results)))
	}
	return nil
}

// saveHistory stores the report in the history database. Failures are
// logged; the JSON file already holds the results.
func saveHistory(ctx context.Context, dbDir string, runReport *model.RunReport, logger *slog.Logger) {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("failed to open history database", "dir", dbDir, "error", err)
		return
	}
	defer db.Close()

	if err := db.SaveRunReport(ctx, runReport); err != nil {
		logger.Warn("failed to save run to history", "run_id", runReport.RunID, "error", err)
		return
	}
	logger.Info("run saved to history", "run_id", runReport.RunID, "db", db.Path())
}

func printRunSummary(deps scanDeps, runReport *model.RunReport, paths []string) error {
	if deps.jsonOutput {
		_, err := report.NewJSONWriter(deps.stdout, report.WithPrettyPrint()).Write(runReport)
		return err
	}

	fmt.Fprintln(deps.stdout)
	if _, err := report.NewSimpleWriter(deps.stdout).Write(runReport); err != nil {
		return err
	}

	ok := color.New(color.FgGreen)
	for _, p := range paths {
		ok.Fprintf(deps.stdout, "[+] Results saved to %s\n", p)
	}
	if n := runReport.Summary()[model.StatusFailed]; n > 0 {
		color.New(color.FgYellow).Fprintf(deps.stdout, "[!] %d command(s) failed\n", n)
	}
	return nil
}

// startEmbeddedTor starts a private Tor daemon with tornago.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, console io.Writer) (*tor.EmbeddedTor, error) {
	fmt.Fprintln(console, "Starting embedded Tor daemon...")
	fmt.Fprintf(console, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"socks", embedded.SocksAddr(),
		"control", embedded.ControlAddr(),
	)
	color.New(color.FgGreen).Fprintf(console, "Embedded Tor started (SOCKS %s, control %s)\n\n",
		embedded.SocksAddr(), embedded.ControlAddr())
	return embedded, nil
}

// explanation is the JSON form of --explain.
type explanation struct {
	Profile          model.ScanProfile      `json:"profile"`
	Scheme           config.ProxyScheme     `json:"scheme"`
	Socks            string                 `json:"socks"`
	RemoteDNS        bool                   `json:"remote_dns"`
	Cooldown         string                 `json:"cooldown,omitempty"`
	IdentitySampling model.IdentitySampling `json:"identity_sampling"`
	Commands         map[string][]string    `json:"commands"`
}

// explainProfile prints what a run with prof would do. Nothing is run or
// written.
func explainProfile(w io.Writer, cfg *config.Config, prof model.ScanProfile, asJSON bool) error {
	prefix := executor.LauncherPrefix(cfg.Proxy, cfg.Launcher)
	commands := make(map[string][]string)
	for _, m := range []model.Module{model.ModulePorts, model.ModuleSubdomains} {
		full := append(append([]string{}, prefix...), recon.BuildCommand(prof, m, "<target>")...)
		commands[m.String()] = full
	}

	if asJSON {
		exp := explanation{
			Profile:          prof,
			Scheme:           cfg.Proxy.Scheme,
			Socks:            cfg.Proxy.SocksAddress,
			RemoteDNS:        cfg.Proxy.Scheme.RemoteDNS(),
			IdentitySampling: cfg.IdentitySampling,
			Commands:         commands,
		}
		if prof.RotatePerTarget {
			exp.Cooldown = cfg.Cooldown.String()
		}
		_, err := report.NewJSONWriter(w, report.WithPrettyPrint()).WriteValue(exp)
		return err
	}

	rotation := "none, every target uses the current circuit"
	if prof.RotatePerTarget {
		rotation = fmt.Sprintf("new circuit before each target (cooldown %s)", cfg.Cooldown)
	}
	dns := "resolved by Tor at the exit"
	if !cfg.Proxy.Scheme.RemoteDNS() {
		dns = "resolved locally (queries leak outside Tor)"
	}

	fmt.Fprintln(w, "[+] Explain Mode Enabled")
	fmt.Fprintf(w, "Profile        : %s\n", prof.Name)
	fmt.Fprintf(w, "Description    : %s\n", prof.Description)
	fmt.Fprintf(w, "Routing        : Tor (%s://%s + %s)\n", cfg.Proxy.Scheme, cfg.Proxy.SocksAddress, cfg.Launcher)
	fmt.Fprintf(w, "DNS            : %s\n", dns)
	fmt.Fprintf(w, "Rotation       : %s\n", rotation)
	fmt.Fprintf(w, "Identity       : sampled %s each command\n", cfg.IdentitySampling)
	fmt.Fprintln(w, "Scan Strategy  : Best-effort, OPSEC-aware")
	fmt.Fprintf(w, "Ports          : %s\n", executor.ShellJoin(commands[model.ModulePorts.String()]))
	fmt.Fprintf(w, "Subdomains     : %s\n", executor.ShellJoin(commands[model.ModuleSubdomains.String()]))
	fmt.Fprintln(w, "Note           : Active scans may fail due to Tor exit restrictions")
	return nil
}

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/torrecon/internal/config"
	"github.com/nao1215/torrecon/internal/database"
	"github.com/nao1215/torrecon/internal/executor"
	"github.com/nao1215/torrecon/internal/model"
	"github.com/nao1215/torrecon/internal/profile"
	"github.com/nao1215/torrecon/internal/recon"
	"github.com/nao1215/torrecon/internal/report"
	"github.com/nao1215/torrecon/internal/tor"
)

// emptyConfigFile returns an empty configuration file so that tests never
// pick up a .torrecon from the working or home directory.
func emptyConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "torrecon.yaml")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// parseScanFlags builds a scan configuration from command-line arguments.
func parseScanFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	cmd := NewScanCmd()
	cmd.SetArgs(args)
	if err := cmd.ParseFlags(append([]string{"-c", emptyConfigFile(t)}, args...)); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return buildScanConfig(cmd, cmd.Flags().Args())
}

func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()
	for _, name := range []string{
		"ports", "subs", "campaign", "profile", "explain", "output-dir", "markdown",
		"json", "cooldown", "identity-sampling", "exec-timeout", "no-history", "db-dir",
		"strict", "socks", "control", "scheme", "launcher", "embedded-tor",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
	if cmd.Flags().ShorthandLookup("p") == nil || cmd.Flags().ShorthandLookup("o") == nil {
		t.Error("expected -p and -o shorthands")
	}
}

func TestBuildScanConfig(t *testing.T) {
	t.Parallel()

	t.Run("single target with both modules", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseScanFlags(t, "Example.COM", "--ports", "--subs", "--profile", "PARANOID")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "example.com" {
			t.Errorf("expected normalized target, got %v", cfg.Targets)
		}
		if cfg.Campaign {
			t.Error("single target must not be a campaign")
		}
		if len(cfg.Modules) != 2 || cfg.Modules[0] != model.ModulePorts || cfg.Modules[1] != model.ModuleSubdomains {
			t.Errorf("unexpected modules %v", cfg.Modules)
		}
		if cfg.Profile != model.ProfileParanoid {
			t.Errorf("expected paranoid, got %s", cfg.Profile)
		}
	})

	t.Run("campaign defaults to the ports module", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseScanFlags(t, "--campaign", "a.example, b.example", "--campaign", "c.example")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a.example", "b.example", "c.example"}
		if strings.Join(cfg.Targets, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, cfg.Targets)
		}
		if !cfg.Campaign {
			t.Error("expected campaign mode")
		}
		if len(cfg.Modules) != 1 || cfg.Modules[0] != model.ModulePorts {
			t.Errorf("expected ports only, got %v", cfg.Modules)
		}
	})

	t.Run("campaign keeps repeated targets in input order", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseScanFlags(t, "--campaign", "a.example,A.Example,b.example,a.example")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a.example", "a.example", "b.example", "a.example"}
		if strings.Join(cfg.Targets, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, cfg.Targets)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseScanFlags(t, "example.com", "--ports",
			"--socks", "127.0.0.1:9150", "--scheme", "socks5", "--cooldown", "0s",
			"--identity-sampling", "before", "--exec-timeout", "30s", "--no-history", "--strict")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Proxy.SocksAddress != "127.0.0.1:9150" || cfg.Proxy.Scheme != config.SchemeSOCKS5 {
			t.Errorf("unexpected proxy %+v", cfg.Proxy)
		}
		if cfg.Cooldown != 0 || cfg.ExecTimeout != 30*time.Second {
			t.Errorf("unexpected durations %v %v", cfg.Cooldown, cfg.ExecTimeout)
		}
		if cfg.IdentitySampling != model.SampleBefore {
			t.Errorf("expected before, got %s", cfg.IdentitySampling)
		}
		if cfg.SaveHistory || !cfg.Strict {
			t.Error("expected no history and strict mode")
		}
	})

	t.Run("explain needs no target", func(t *testing.T) {
		t.Parallel()
		cfg, err := parseScanFlags(t, "--explain")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.Explain {
			t.Error("expected explain mode")
		}
	})

	errorCases := []struct {
		name string
		args []string
	}{
		{"no target", []string{"--ports"}},
		{"no module", []string{"example.com"}},
		{"unknown profile", []string{"example.com", "--ports", "--profile", "loud"}},
		{"target and campaign", []string{"example.com", "--campaign", "a.example"}},
		{"invalid target", []string{"exa mple.com", "--ports"}},
		{"bad scheme", []string{"example.com", "--ports", "--scheme", "http"}},
		{"bad sampling", []string{"example.com", "--ports", "--identity-sampling", "during"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseScanFlags(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := exitCode(err); code != exitUsage {
				t.Errorf("expected usage exit code, got %d (%v)", code, err)
			}
		})
	}
}

// TestBuildScanConfigEnvironment checks the flag > env > file precedence.
// t.Setenv forbids t.Parallel.
func TestBuildScanConfigEnvironment(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "torrecon.yaml")
	content := "profile: connect\nproxy:\n  socks: 127.0.0.1:1111\n  control: 127.0.0.1:2222\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TORRECON_SOCKS", "127.0.0.1:9150")
	t.Setenv("TORRECON_PROFILE", "paranoid")
	t.Setenv("TORRECON_CAMPAIGN", "a.example,b.example")

	cmd := NewScanCmd()
	if err := cmd.ParseFlags([]string{"-c", cfgFile, "--profile", "stealth"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := buildScanConfig(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Profile != model.ProfileStealth {
		t.Errorf("flag must win over env, got %s", cfg.Profile)
	}
	if cfg.Proxy.SocksAddress != "127.0.0.1:9150" {
		t.Errorf("env must win over file, got %s", cfg.Proxy.SocksAddress)
	}
	if cfg.Proxy.ControlAddress != "127.0.0.1:2222" {
		t.Errorf("file must win over defaults, got %s", cfg.Proxy.ControlAddress)
	}
	if len(cfg.Targets) != 2 || !cfg.Campaign {
		t.Errorf("expected campaign from env, got %v", cfg.Targets)
	}
	if cfg.ConfigFilePath != cfgFile {
		t.Errorf("expected config path %s, got %s", cfgFile, cfg.ConfigFilePath)
	}
}

func TestScanMissingConfigFile(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run([]string{"scan", "example.com", "--ports", "-c", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)
	if code != exitUsage {
		t.Errorf("expected exit %d, got %d", exitUsage, code)
	}
}

func TestScanExplain(t *testing.T) {
	t.Parallel()

	t.Run("prints profile metadata and writes nothing", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		outDir := filepath.Join(dir, "out")
		dbDir := filepath.Join(dir, "db")
		var stdout, stderr bytes.Buffer
		code := run([]string{"scan", "--explain", "--profile", "paranoid",
			"-c", emptyConfigFile(t), "-o", outDir, "--db-dir", dbDir}, &stdout, &stderr)
		if code != exitOK {
			t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
		}

		output := stdout.String()
		for _, want := range []string{
			"Explain Mode Enabled",
			"Profile        : paranoid",
			"new circuit before each target",
			"resolved by Tor at the exit",
			"torsocks nmap",
			"subfinder",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
		for _, d := range []string{outDir, dbDir} {
			if _, err := os.Stat(d); !os.IsNotExist(err) {
				t.Errorf("explain mode must not create %s", d)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var stdout, stderr bytes.Buffer
		code := run([]string{"scan", "--explain", "--json", "--scheme", "socks5",
			"-c", emptyConfigFile(t)}, &stdout, &stderr)
		if code != exitOK {
			t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
		}
		output := stdout.String()
		if !strings.Contains(output, `"remote_dns": false`) {
			t.Errorf("expected remote_dns false, got:\n%s", output)
		}
		if !strings.Contains(output, `"ports"`) {
			t.Errorf("expected ports command, got:\n%s", output)
		}
	})

	t.Run("unknown profile is a usage error", func(t *testing.T) {
		t.Parallel()

		var stdout, stderr bytes.Buffer
		code := run([]string{"scan", "--explain", "--profile", "loud", "-c", emptyConfigFile(t)}, &stdout, &stderr)
		if code != exitUsage {
			t.Errorf("expected exit %d, got %d", exitUsage, code)
		}
	})
}

func TestScanArgumentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"scan", "--ports"}},
		{"two targets", []string{"scan", "a.example", "b.example", "--ports"}},
		{"target and campaign", []string{"scan", "a.example", "--campaign", "b.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			args := append(tt.args, "-c", emptyConfigFile(t), "-o", filepath.Join(t.TempDir(), "out"))
			if code := run(args, &stdout, &stderr); code != exitUsage {
				t.Errorf("expected exit %d, got %d: %s", exitUsage, code, stderr.String())
			}
		})
	}
}

// fakeRunner answers every command with a canned result.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	result executor.RunResult
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string) (executor.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.result, f.err
}

type staticIdentity struct{ label string }

func (s staticIdentity) Current(context.Context) model.Identity {
	return model.NewIdentity(s.label)
}

type countingRotator struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRotator) Rotate(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

type scanFixture struct {
	stdout  bytes.Buffer
	console bytes.Buffer
	runner  *fakeRunner
	rotator *countingRotator
	deps    scanDeps
}

func newScanFixture(result executor.RunResult, status tor.ProxyStatus) *scanFixture {
	f := &scanFixture{
		runner:  &fakeRunner{result: result},
		rotator: &countingRotator{},
	}
	f.deps = scanDeps{
		stdout:  &f.stdout,
		console: &f.console,
		runner:  f.runner,
		identity: func(config.ProxyConfig, *slog.Logger) (recon.IdentitySource, error) {
			return staticIdentity{label: "185.220.101.1"}, nil
		},
		rotator: func(config.ProxyConfig, time.Duration, *slog.Logger) recon.Rotator {
			return f.rotator
		},
		proxyCheck: func(context.Context, config.ProxyConfig) tor.ProxyStatus {
			return status
		},
		now: func() time.Time {
			return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		},
	}
	return f
}

func scanConfig(t *testing.T, targets []string, campaign bool, modules ...model.Module) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Targets = targets
	cfg.Campaign = campaign
	cfg.Modules = modules
	cfg.OutputDir = filepath.Join(t.TempDir(), "output")
	cfg.SaveHistory = false
	return cfg
}

func mustProfile(t *testing.T, name model.ProfileName) model.ScanProfile {
	t.Helper()
	p, err := profile.NewRegistry().Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunScanCampaign(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{Stdout: []byte("80/tcp open http\n")}, tor.ProxyStatusOK)
	cfg := scanConfig(t, []string{"a.example", "b.example"}, true, model.ModulePorts)

	err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.rotator.calls != 0 {
		t.Errorf("stealth must not rotate, got %d rotations", f.rotator.calls)
	}
	if len(f.runner.calls) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(f.runner.calls))
	}
	if f.runner.calls[0][0] != config.DefaultLauncher {
		t.Errorf("expected commands wrapped by %s, got %v", config.DefaultLauncher, f.runner.calls[0])
	}

	path := filepath.Join(cfg.OutputDir, "campaign_stealth.json")
	saved, err := report.Load(path)
	if err != nil {
		t.Fatalf("failed to load results: %v", err)
	}
	if saved.Target != "" || len(saved.Results) != 2 {
		t.Fatalf("unexpected report: target=%q results=%d", saved.Target, len(saved.Results))
	}
	for i, target := range []string{"a.example", "b.example"} {
		rec := saved.Results[i]
		if rec.Target != target {
			t.Errorf("record %d: expected target %s, got %s", i, target, rec.Target)
		}
		if rec.Status != model.StatusAttempted {
			t.Errorf("record %d: expected attempted, got %s", i, rec.Status)
		}
		if rec.Identity.Label != "185.220.101.1" {
			t.Errorf("record %d: unexpected identity %s", i, rec.Identity.Label)
		}
	}

	if !strings.Contains(f.console.String(), "CAMPAIGN MODE: 2 targets") {
		t.Errorf("expected campaign banner, got:\n%s", f.console.String())
	}
	if !strings.Contains(f.stdout.String(), "Results saved to "+path) {
		t.Errorf("expected result path in summary, got:\n%s", f.stdout.String())
	}
}

func TestRunScanRepeatedCampaignTarget(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{Stdout: []byte("80/tcp open http")}, tor.ProxyStatusOK)
	targets := []string{"a.example", "b.example", "a.example"}
	cfg := scanConfig(t, targets, true, model.ModulePorts)

	if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saved, err := report.Load(filepath.Join(cfg.OutputDir, "campaign_stealth.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Results) != len(targets) {
		t.Fatalf("expected %d records, got %d", len(targets), len(saved.Results))
	}
	for i, target := range targets {
		if saved.Results[i].Target != target {
			t.Errorf("record %d: expected %s, got %s", i, target, saved.Results[i].Target)
		}
	}
}

func TestRunScanParanoidRotatesPerTarget(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{Stdout: []byte("www.example.com\n")}, tor.ProxyStatusOK)
	cfg := scanConfig(t, []string{"a.example", "b.example", "c.example"}, true,
		model.ModulePorts, model.ModuleSubdomains)

	if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileParanoid), discardLogger(), f.deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.rotator.calls != 3 {
		t.Errorf("expected one rotation per target, got %d", f.rotator.calls)
	}
	if len(f.runner.calls) != 6 {
		t.Errorf("expected 6 commands, got %d", len(f.runner.calls))
	}
}

func TestRunScanFailures(t *testing.T) {
	t.Parallel()

	failing := executor.RunResult{Stderr: []byte("connection refused"), ExitCode: 1}

	t.Run("failures are recorded without strict", func(t *testing.T) {
		t.Parallel()
		f := newScanFixture(failing, tor.ProxyStatusOK)
		cfg := scanConfig(t, []string{"example.com"}, false, model.ModulePorts)

		if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		saved, err := report.Load(filepath.Join(cfg.OutputDir, "example.com_stealth.json"))
		if err != nil {
			t.Fatal(err)
		}
		if saved.Results[0].Status != model.StatusFailed {
			t.Errorf("expected failed, got %s", saved.Results[0].Status)
		}
		if !strings.Contains(f.stdout.String(), "1 command(s) failed") {
			t.Errorf("expected failure count, got:\n%s", f.stdout.String())
		}
	})

	t.Run("strict exits with the failures code", func(t *testing.T) {
		t.Parallel()
		f := newScanFixture(failing, tor.ProxyStatusOK)
		cfg := scanConfig(t, []string{"example.com"}, false, model.ModulePorts)
		cfg.Strict = true

		err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps)
		if code := exitCode(err); code != exitFailures {
			t.Errorf("expected exit %d, got %d (%v)", exitFailures, code, err)
		}
	})

	t.Run("launcher missing fails every record", func(t *testing.T) {
		t.Parallel()
		f := newScanFixture(executor.RunResult{ExitCode: -1}, tor.ProxyStatusOK)
		f.runner.err = errors.New("exec: \"torsocks\": executable file not found in $PATH")
		cfg := scanConfig(t, []string{"example.com"}, false, model.ModulePorts, model.ModuleSubdomains)

		if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileConnect), discardLogger(), f.deps); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		saved, err := report.Load(filepath.Join(cfg.OutputDir, "example.com_connect.json"))
		if err != nil {
			t.Fatal(err)
		}
		for _, rec := range saved.Results {
			if rec.Status != model.StatusFailed || rec.Error == "" {
				t.Errorf("expected failed record with error, got %+v", rec)
			}
		}
	})
}

func TestRunScanWarnings(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{}, tor.ProxyStatusCannotConnect)
	cfg := scanConfig(t, []string{"example.com"}, false, model.ModulePorts)
	cfg.Proxy.Scheme = config.SchemeSOCKS5

	if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps); err != nil {
		t.Fatalf("a failed proxy check must not abort the run: %v", err)
	}
	console := f.console.String()
	if !strings.Contains(console, "Commands will likely fail") {
		t.Errorf("expected proxy warning, got:\n%s", console)
	}
	if !strings.Contains(console, "DNS queries leave the machine") {
		t.Errorf("expected DNS leak warning, got:\n%s", console)
	}
}

func TestRunScanJSONAndMarkdown(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{Stdout: []byte("22/tcp open ssh")}, tor.ProxyStatusOK)
	f.deps.jsonOutput = true
	cfg := scanConfig(t, []string{"example.com"}, false, model.ModulePorts)
	cfg.Markdown = true

	if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(f.stdout.String(), `"run_id"`) {
		t.Errorf("expected JSON report on stdout, got:\n%s", f.stdout.String())
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "example.com_stealth.md")); err != nil {
		t.Errorf("expected markdown summary: %v", err)
	}
}

func TestRunScanSavesHistory(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{Stdout: []byte("80/tcp open http")}, tor.ProxyStatusOK)
	cfg := scanConfig(t, []string{"example.com"}, false, model.ModulePorts)
	cfg.SaveHistory = true
	cfg.DBDir = t.TempDir()

	if err := runScan(context.Background(), cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Name != "example.com" {
		t.Fatalf("expected one stored run for example.com, got %+v", runs)
	}
}

func TestRunScanInterrupted(t *testing.T) {
	t.Parallel()

	f := newScanFixture(executor.RunResult{Stdout: []byte("80/tcp open http")}, tor.ProxyStatusOK)
	cfg := scanConfig(t, []string{"a.example", "b.example"}, true, model.ModulePorts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runScan(ctx, cfg, mustProfile(t, model.ProfileStealth), discardLogger(), f.deps)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.OutputDir, "campaign_stealth.json")); statErr != nil {
		t.Errorf("partial report must still be written: %v", statErr)
	}
}

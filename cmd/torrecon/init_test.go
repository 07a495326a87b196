package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/torrecon/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()
	if cmd.Use != "init" {
		t.Errorf("expected use 'init', got %q", cmd.Use)
	}
	out := cmd.Flags().Lookup("output")
	if out == nil || out.DefValue != config.DefaultConfigFile {
		t.Errorf("expected output flag defaulting to %s", config.DefaultConfigFile)
	}
	if cmd.Flags().Lookup("force") == nil {
		t.Error("expected force flag")
	}
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	runInit := func(t *testing.T, args ...string) (string, error) {
		t.Helper()
		cmd := NewInitCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return buf.String(), err
	}

	t.Run("creates file in nested directory", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "a", "b", "torrecon.yaml")
		out, err := runInit(t, "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, path) {
			t.Errorf("expected output to name the file, got %q", out)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".torrecon")
		if err := os.WriteFile(path, []byte("profile: paranoid\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := runInit(t, "-o", path); err == nil {
			t.Fatal("expected error for existing file")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "profile: paranoid\n" {
			t.Error("existing file must be left untouched")
		}
	})

	t.Run("force overwrites", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".torrecon")
		if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := runInit(t, "-o", path, "-f"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "identity_sampling") {
			t.Error("expected the template to be written")
		}
	})
}

// TestConfigTemplate checks that the template loads and matches the defaults.
func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	content, err := configTemplate.ReadFile("templates/torrecon.yaml")
	if err != nil {
		t.Fatalf("failed to read template: %v", err)
	}
	path := filepath.Join(t.TempDir(), ".torrecon")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	f, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	cfg := config.NewConfig()
	f.Apply(cfg)

	def := config.NewConfig()
	if cfg.Proxy != def.Proxy {
		t.Errorf("template proxy settings differ from defaults:\n got %+v\nwant %+v", cfg.Proxy, def.Proxy)
	}
	if cfg.Profile != def.Profile || cfg.Cooldown != def.Cooldown || cfg.Launcher != def.Launcher {
		t.Error("template differs from defaults")
	}
	if cfg.IdentitySampling != def.IdentitySampling || cfg.ExecTimeout != def.ExecTimeout {
		t.Error("template rotation or exec settings differ from defaults")
	}
	if cfg.OutputDir != def.OutputDir {
		t.Errorf("expected output dir %s, got %s", def.OutputDir, cfg.OutputDir)
	}
}

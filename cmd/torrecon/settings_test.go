package main

import (
	"strings"
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"single", []string{"a.example"}, []string{"a.example"}},
		{"comma separated", []string{"a.example,b.example"}, []string{"a.example", "b.example"}},
		{"repeated and padded", []string{" a.example ", "b.example, c.example"}, []string{"a.example", "b.example", "c.example"}},
		{"blanks dropped", []string{",,a.example,", " "}, []string{"a.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitList(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("splitList(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestLoadBaseConfigEnvironment checks environment overrides of the proxy
// settings. t.Setenv forbids t.Parallel.
func TestLoadBaseConfigEnvironment(t *testing.T) {
	t.Setenv("TORRECON_CONTROL", "127.0.0.1:9151")
	t.Setenv("TORRECON_IDENTITY_TIMEOUT", "30s")
	t.Setenv("TORRECON_ISOLATE", "true")

	cmd := NewCheckCmd()
	if err := cmd.ParseFlags([]string{"-c", emptyConfigFile(t), "--launcher", "proxychains4"}); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := loadBaseConfig(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Proxy.ControlAddress != "127.0.0.1:9151" {
		t.Errorf("expected control from env, got %s", cfg.Proxy.ControlAddress)
	}
	if cfg.Proxy.IdentityTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Proxy.IdentityTimeout)
	}
	if !cfg.Proxy.Isolate {
		t.Error("expected isolate from env")
	}
	if cfg.Launcher != "proxychains4" {
		t.Errorf("expected launcher from flag, got %s", cfg.Launcher)
	}
	if cfg.Proxy.SocksAddress != "127.0.0.1:9050" {
		t.Errorf("expected default socks, got %s", cfg.Proxy.SocksAddress)
	}
}

package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// TestParseProfileName tests the closed set of profile names.
func TestParseProfileName(t *testing.T) {
	t.Parallel()

	t.Run("accepts known names", func(t *testing.T) {
		t.Parallel()
		for _, name := range ProfileNames() {
			got, err := ParseProfileName(string(name))
			if err != nil {
				t.Errorf("unexpected error for %s: %v", name, err)
			}
			if got != name {
				t.Errorf("expected %s, got %s", name, got)
			}
		}
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		t.Parallel()
		_, err := ParseProfileName("aggressive")
		if !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got %v", err)
		}
		if !strings.Contains(err.Error(), "stealth") {
			t.Errorf("expected error to list valid names, got %q", err.Error())
		}
	})

	t.Run("matching is case sensitive", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseProfileName("Stealth"); err == nil {
			t.Error("expected error for differently cased name")
		}
	})
}

// TestScanProfileTemplate verifies that Template returns a copy.
func TestScanProfileTemplate(t *testing.T) {
	t.Parallel()

	p := ScanProfile{Name: ProfileStealth, CommandTemplate: []string{"-sT", "-Pn"}}
	tmpl := p.Template()
	tmpl[0] = "-sS"

	if p.CommandTemplate[0] != "-sT" {
		t.Errorf("expected registry entry to be unchanged, got %v", p.CommandTemplate)
	}
}

// TestIdentity tests the identity sentinel and text encoding.
func TestIdentity(t *testing.T) {
	t.Parallel()

	t.Run("empty label is unknown", func(t *testing.T) {
		t.Parallel()
		if !NewIdentity("").IsUnknown() {
			t.Error("expected empty label to be unknown")
		}
		if NewIdentity("") != UnknownIdentity {
			t.Error("expected empty label to equal the sentinel")
		}
	})

	t.Run("encodes as a plain string", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(struct {
			ID Identity `json:"identity"`
		}{ID: NewIdentity("198.51.100.7")})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != `{"identity":"198.51.100.7"}` {
			t.Errorf("unexpected encoding: %s", data)
		}
	})
}

// TestExecutionRecordDigest tests sealing and verification.
func TestExecutionRecordDigest(t *testing.T) {
	t.Parallel()

	newRecord := func() ExecutionRecord {
		return ExecutionRecord{
			Target:   "a.example",
			Module:   ModulePorts,
			Command:  []string{"torsocks", "nmap", "-4", "a.example"},
			Identity: NewIdentity("198.51.100.7"),
		}
	}

	t.Run("sealed record verifies", func(t *testing.T) {
		t.Parallel()
		rec := newRecord()
		rec.Seal()
		if len(rec.Digest) != 64 {
			t.Errorf("expected 64 hex characters, got %d", len(rec.Digest))
		}
		if !rec.Verify() {
			t.Error("expected sealed record to verify")
		}
	})

	t.Run("changing the identity breaks verification", func(t *testing.T) {
		t.Parallel()
		rec := newRecord()
		rec.Seal()
		rec.Identity = NewIdentity("203.0.113.9")
		if rec.Verify() {
			t.Error("expected tampered record to fail verification")
		}
	})

	t.Run("unsealed record does not verify", func(t *testing.T) {
		t.Parallel()
		rec := newRecord()
		if rec.Verify() {
			t.Error("expected unsealed record to fail verification")
		}
	})
}

// TestRunReport tests report construction and summaries.
func TestRunReport(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	r := NewRunReport(ProfileStealth, now)

	t.Run("timestamp is UTC", func(t *testing.T) {
		t.Parallel()
		if r.Timestamp.Location() != time.UTC {
			t.Errorf("expected UTC, got %v", r.Timestamp.Location())
		}
		if !r.Timestamp.Equal(now) {
			t.Errorf("expected same instant, got %v", r.Timestamp)
		}
	})

	t.Run("has a run id", func(t *testing.T) {
		t.Parallel()
		if r.RunID == "" {
			t.Error("expected run id")
		}
	})

	t.Run("name defaults to campaign", func(t *testing.T) {
		t.Parallel()
		if r.Name() != CampaignName {
			t.Errorf("expected %q, got %q", CampaignName, r.Name())
		}
		single := &RunReport{Target: "a.example"}
		if single.Name() != "a.example" {
			t.Errorf("expected target name, got %q", single.Name())
		}
	})

	t.Run("summary counts statuses", func(t *testing.T) {
		t.Parallel()
		rr := &RunReport{Results: []ExecutionRecord{
			{Status: StatusAttempted},
			{Status: StatusFailed},
			{Status: StatusAttempted},
		}}
		s := rr.Summary()
		if s[StatusAttempted] != 2 || s[StatusFailed] != 1 || s[StatusCompleted] != 0 {
			t.Errorf("unexpected summary: %v", s)
		}
		if !rr.HasFailures() {
			t.Error("expected HasFailures to be true")
		}
	})

	t.Run("results encode as an empty array", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(NewRunReport(ProfileStealth, now))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(data), `"results":[]`) {
			t.Errorf("expected empty results array, got %s", data)
		}
		if strings.Contains(string(data), `"target"`) {
			t.Errorf("expected target to be omitted, got %s", data)
		}
	})
}

package profile

import (
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/torrecon/internal/model"
)

// TestNewRegistry tests the built-in profiles.
func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	t.Run("registry validates", func(t *testing.T) {
		t.Parallel()
		if err := r.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("stealth matches the documented flags", func(t *testing.T) {
		t.Parallel()

		p, err := r.Lookup(model.ProfileStealth)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"-sT", "-Pn", "--max-rate", "10", "--max-retries", "2", "--host-timeout", "3m", "--unprivileged"}
		if !slices.Equal(p.CommandTemplate, want) {
			t.Errorf("template = %v, want %v", p.CommandTemplate, want)
		}
		if p.RotatePerTarget {
			t.Error("stealth must not rotate")
		}
		if p.Description != "Low noise, Tor-safe scanning (best-effort)" {
			t.Errorf("unexpected description %q", p.Description)
		}
	})

	t.Run("paranoid rotates per target", func(t *testing.T) {
		t.Parallel()

		p, err := r.Lookup(model.ProfileParanoid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.RotatePerTarget {
			t.Error("paranoid must rotate per target")
		}
	})

	t.Run("All keeps registration order", func(t *testing.T) {
		t.Parallel()

		all := r.All()
		names := make([]model.ProfileName, len(all))
		for i, p := range all {
			names[i] = p.Name
		}
		if !slices.Equal(names, model.ProfileNames()) {
			t.Errorf("names = %v, want %v", names, model.ProfileNames())
		}
	})
}

// TestRegistryLookup tests exact lookup and immutability.
func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	t.Run("unknown name is ErrUnknownProfile", func(t *testing.T) {
		t.Parallel()

		_, err := NewRegistry().Lookup("loud")
		if !errors.Is(err, model.ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got %v", err)
		}
	})

	t.Run("lookup is case sensitive", func(t *testing.T) {
		t.Parallel()

		if _, err := NewRegistry().Lookup("Stealth"); !errors.Is(err, model.ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got %v", err)
		}
	})

	t.Run("mutating a returned template does not change the registry", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		p, err := r.Lookup(model.ProfileStealth)
		if err != nil {
			t.Fatal(err)
		}
		p.CommandTemplate[0] = "-sS"
		all := r.All()
		all[0].CommandTemplate[1] = "-O"

		again, err := r.Lookup(model.ProfileStealth)
		if err != nil {
			t.Fatal(err)
		}
		if again.CommandTemplate[0] != "-sT" || again.CommandTemplate[1] != "-Pn" {
			t.Errorf("registry was mutated: %v", again.CommandTemplate)
		}
	})
}

// TestRegistryRegister tests the registration checks.
func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	valid := model.ScanProfile{
		Name:            model.ProfileConnect,
		CommandTemplate: []string{"-sT"},
		Description:     "test",
	}

	tests := []struct {
		name    string
		profile func() model.ScanProfile
		wantErr error
	}{
		{
			name:    "name outside the closed set",
			profile: func() model.ScanProfile { p := valid; p.Name = "custom"; return p },
			wantErr: model.ErrUnknownProfile,
		},
		{
			name:    "empty template",
			profile: func() model.ScanProfile { p := valid; p.CommandTemplate = nil; return p },
			wantErr: ErrEmptyTemplate,
		},
		{
			name:    "blank template argument",
			profile: func() model.ScanProfile { p := valid; p.CommandTemplate = []string{"-sT", " "}; return p },
			wantErr: ErrEmptyTemplate,
		},
		{
			name:    "empty description",
			profile: func() model.ScanProfile { p := valid; p.Description = ""; return p },
			wantErr: ErrEmptyDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &Registry{profiles: make(map[model.ProfileName]model.ScanProfile)}
			if err := r.register(tt.profile()); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()

		if err := NewRegistry().register(valid); !errors.Is(err, ErrDuplicateProfile) {
			t.Errorf("expected ErrDuplicateProfile, got %v", err)
		}
	})

	t.Run("partial registry fails validation", func(t *testing.T) {
		t.Parallel()

		r := &Registry{profiles: make(map[model.ProfileName]model.ScanProfile)}
		if err := r.register(valid); err != nil {
			t.Fatal(err)
		}
		if err := r.Validate(); !errors.Is(err, model.ErrUnknownProfile) {
			t.Errorf("expected ErrUnknownProfile, got %v", err)
		}
	})
}

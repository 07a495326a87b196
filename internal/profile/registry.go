package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/torrecon/internal/model"
)

// Registry errors.
var (
	// ErrDuplicateProfile is returned when a name is registered twice.
	ErrDuplicateProfile = errors.New("duplicate scan profile")

	// ErrEmptyTemplate is returned for a profile without nmap arguments.
	ErrEmptyTemplate = errors.New("scan profile has an empty command template")

	// ErrEmptyDescription is returned for a profile without a description.
	ErrEmptyDescription = errors.New("scan profile has an empty description")
)

// Registry is the ordered set of known scan profiles.
type Registry struct {
	profiles map[model.ProfileName]model.ScanProfile
	order    []model.ProfileName
}

// NewRegistry returns a registry holding every built-in profile.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[model.ProfileName]model.ScanProfile)}
	for _, p := range builtins() {
		r.mustRegister(p)
	}
	return r
}

func builtins() []model.ScanProfile {
	return []model.ScanProfile{
		{
			Name: model.ProfileStealth,
			CommandTemplate: []string{
				"-sT",
				"-Pn",
				"--max-rate", "10",
				"--max-retries", "2",
				"--host-timeout", "3m",
				"--unprivileged",
			},
			RotatePerTarget: false,
			Description:     "Low noise, Tor-safe scanning (best-effort)",
		},
		{
			Name: model.ProfileParanoid,
			CommandTemplate: []string{
				"-sT",
				"-Pn",
				"--max-rate", "2",
				"--max-retries", "1",
				"--scan-delay", "1s",
				"--host-timeout", "10m",
				"--unprivileged",
			},
			RotatePerTarget: true,
			Description:     "Slowest connect scan with a fresh Tor circuit for every target",
		},
		{
			Name: model.ProfileConnect,
			CommandTemplate: []string{
				"-sT",
				"-Pn",
				"--top-ports", "100",
				"--max-retries", "2",
				"--host-timeout", "5m",
				"--unprivileged",
			},
			RotatePerTarget: false,
			Description:     "TCP connect scan of the 100 most common ports",
		},
	}
}

// register adds p after checking it. Names outside the closed
// model.ProfileName set are rejected.
func (r *Registry) register(p model.ScanProfile) error {
	if _, err := model.ParseProfileName(string(p.Name)); err != nil {
		return err
	}
	if _, ok := r.profiles[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProfile, p.Name)
	}
	if err := validateProfile(p); err != nil {
		return err
	}
	p.CommandTemplate = p.Template()
	r.profiles[p.Name] = p
	r.order = append(r.order, p.Name)
	return nil
}

func (r *Registry) mustRegister(p model.ScanProfile) {
	if err := r.register(p); err != nil {
		panic(fmt.Sprintf("profile: invalid built-in profile: %v", err))
	}
}

func validateProfile(p model.ScanProfile) error {
	if len(p.CommandTemplate) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyTemplate, p.Name)
	}
	for _, arg := range p.CommandTemplate {
		if strings.TrimSpace(arg) == "" {
			return fmt.Errorf("%w: %s has a blank argument", ErrEmptyTemplate, p.Name)
		}
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyDescription, p.Name)
	}
	return nil
}

// Lookup returns the profile with exactly this name. The returned value
// owns its template, so changing it does not affect the registry.
func (r *Registry) Lookup(name model.ProfileName) (model.ScanProfile, error) {
	p, ok := r.profiles[name]
	if !ok {
		if _, err := model.ParseProfileName(string(name)); err != nil {
			return model.ScanProfile{}, err
		}
		return model.ScanProfile{}, fmt.Errorf("%w: %q is not registered", model.ErrUnknownProfile, name)
	}
	p.CommandTemplate = p.Template()
	return p, nil
}

// All returns every profile in registration order.
func (r *Registry) All() []model.ScanProfile {
	out := make([]model.ScanProfile, 0, len(r.order))
	for _, name := range r.order {
		p := r.profiles[name]
		p.CommandTemplate = p.Template()
		out = append(out, p)
	}
	return out
}

// Validate checks that every known profile name is registered and every
// registered profile is well formed.
func (r *Registry) Validate() error {
	for _, name := range model.ProfileNames() {
		p, ok := r.profiles[name]
		if !ok {
			return fmt.Errorf("%w: %q is not registered", model.ErrUnknownProfile, name)
		}
		if err := validateProfile(p); err != nil {
			return err
		}
	}
	return nil
}

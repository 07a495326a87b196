package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ProfileName identifies a scan profile. The set of names is closed:
// only the constants below are valid, and ParseProfileName rejects
// everything else before a run starts.
type ProfileName string

const (
	// ProfileStealth is a low-noise connect scan that never rotates circuits.
	ProfileStealth ProfileName = "stealth"

	// ProfileParanoid scans even slower and rotates the circuit per target.
	ProfileParanoid ProfileName = "paranoid"

	// ProfileConnect is a connect scan over the most common ports.
	ProfileConnect ProfileName = "connect"
)

// DefaultProfile is the profile used when none is selected.
const DefaultProfile = ProfileStealth

// ErrUnknownProfile is returned when a profile name is not one of the
// known profile names.
var ErrUnknownProfile = errors.New("unknown scan profile")

// ProfileNames returns every valid profile name in display order.
func ProfileNames() []ProfileName {
	return []ProfileName{ProfileStealth, ProfileParanoid, ProfileConnect}
}

// ParseProfileName converts user input to a ProfileName.
// Matching is exact after trimming surrounding whitespace.
func ParseProfileName(s string) (ProfileName, error) {
	name := ProfileName(strings.TrimSpace(s))
	if !slices.Contains(ProfileNames(), name) {
		return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownProfile, s, joinProfileNames())
	}
	return name, nil
}

func joinProfileNames() string {
	names := ProfileNames()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}

// String returns the profile name.
func (p ProfileName) String() string {
	return string(p)
}

// ScanProfile is a named bundle of port-scanner flags and rotation policy.
// Profiles are immutable once the registry is built.
type ScanProfile struct {
	// Name is unique within the registry.
	Name ProfileName `json:"name" yaml:"name"`

	// CommandTemplate holds the fixed nmap arguments, in order.
	CommandTemplate []string `json:"command_template" yaml:"command_template"`

	// RotatePerTarget requests a new Tor circuit before each target.
	RotatePerTarget bool `json:"rotate_per_target" yaml:"rotate_per_target"`

	// Description is shown by --explain.
	Description string `json:"description" yaml:"description"`
}

// Template returns a copy of the command template so callers cannot
// mutate the registry entry.
func (p ScanProfile) Template() []string {
	return slices.Clone(p.CommandTemplate)
}

package model

import "fmt"

// Module identifies which reconnaissance tool a record belongs to.
type Module string

const (
	// ModulePorts runs the port scanner (nmap).
	ModulePorts Module = "ports"

	// ModuleSubdomains runs the subdomain enumerator (subfinder).
	ModuleSubdomains Module = "subdomains"
)

// Tool returns the executable name used by the module.
func (m Module) Tool() string {
	switch m {
	case ModulePorts:
		return "nmap"
	case ModuleSubdomains:
		return "subfinder"
	default:
		return ""
	}
}

// Validate returns an error for modules other than the known ones.
func (m Module) Validate() error {
	switch m {
	case ModulePorts, ModuleSubdomains:
		return nil
	default:
		return fmt.Errorf("unknown module %q", string(m))
	}
}

// String returns the module name.
func (m Module) String() string {
	return string(m)
}

// Status is the outcome of one execution as seen by the run coordinator.
type Status string

const (
	// StatusAttempted means the command ran but its output is not interpreted.
	StatusAttempted Status = "attempted"

	// StatusCompleted means the command ran and produced results.
	StatusCompleted Status = "completed"

	// StatusNoResults means the command ran cleanly but found nothing.
	StatusNoResults Status = "no_results"

	// StatusFailed means the command could not be launched or exited with an error.
	StatusFailed Status = "failed"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// IsFailure reports whether the status represents a failed execution.
func (s Status) IsFailure() bool {
	return s == StatusFailed
}

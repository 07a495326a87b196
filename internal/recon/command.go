package recon

import (
	"github.com/nao1215/torrecon/internal/model"
)

// BuildCommand assembles the base command for one module and target. The
// argument order is fixed:
//
//	ports:      nmap <profile template> -4 <target>
//	subdomains: subfinder -d <target> -silent
//
// The profile template only applies to the port scanner.
func BuildCommand(profile model.ScanProfile, module model.Module, target string) []string {
	switch module {
	case model.ModulePorts:
		cmd := []string{module.Tool()}
		cmd = append(cmd, profile.Template()...)
		return append(cmd, "-4", target)
	case model.ModuleSubdomains:
		return []string{module.Tool(), "-d", target, "-silent"}
	default:
		return nil
	}
}

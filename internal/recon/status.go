package recon

import (
	"fmt"
	"strings"

	"github.com/nao1215/torrecon/internal/executor"
	"github.com/nao1215/torrecon/internal/model"
)

// applyOutcome fills the status and result fields of rec from out using
// the rules of rec.Module.
func applyOutcome(rec *model.ExecutionRecord, out executor.Outcome) {
	rec.ExitCode = out.ExitCode
	rec.Error = failureMessage(out)

	switch rec.Module {
	case model.ModulePorts:
		rec.Output = strings.TrimSpace(out.Stdout)
		if rec.Error != "" {
			rec.Status = model.StatusFailed
			return
		}
		rec.Status = model.StatusAttempted

	case model.ModuleSubdomains:
		lines := nonEmptyLines(out.Stdout)
		switch {
		case out.Err != nil:
			// Never launched, or killed part way. A killed child keeps
			// what it printed before the kill.
			rec.Status = model.StatusFailed
			if len(lines) > 0 {
				rec.SetCount(len(lines))
				rec.Data = lines
			}
		case len(lines) > 0:
			rec.Status = model.StatusCompleted
			rec.SetCount(len(lines))
			rec.Data = lines
			// Results win over a non-zero exit, so the exit is not an error.
			rec.Error = ""
		case out.ExitCode == 0:
			rec.Status = model.StatusNoResults
			rec.SetCount(0)
		default:
			rec.Status = model.StatusFailed
		}

	default:
		rec.Status = model.StatusFailed
		rec.Error = fmt.Sprintf("unknown module %q", rec.Module)
	}
}

// failureMessage describes a launch failure or a non-zero exit, or returns
// "" when the command exited cleanly.
func failureMessage(out executor.Outcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if out.ExitCode == 0 {
		return ""
	}
	msg := fmt.Sprintf("exit status %d", out.ExitCode)
	if line := firstLine(out.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/torrecon/internal/model"
)

// SimpleWriter outputs a plain-text summary for the terminal. It uses no
// ANSI colors so the output can be piped or redirected.
type SimpleWriter struct {
	baseWriter
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose includes command lines and kept output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report summary.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeResults(&sb, report)
	w.writeSummary(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("TORRECON RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(sb, "Run ID    : %s\n", report.RunID)
	fmt.Fprintf(sb, "Profile   : %s\n", report.Profile)
	if report.Target != "" {
		fmt.Fprintf(sb, "Target    : %s\n", report.Target)
	} else {
		fmt.Fprintf(sb, "Campaign  : %d target(s)\n", countTargets(report))
	}
	fmt.Fprintf(sb, "Started   : %s\n", report.Timestamp.Format(time.RFC3339))
	if report.Proxy != nil {
		fmt.Fprintf(sb, "Proxy     : %s://%s\n", report.Proxy.Scheme, report.Proxy.Socks)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeResults(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("RESULTS\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")

	if len(report.Results) == 0 {
		sb.WriteString("  no commands were run\n\n")
		return
	}

	for _, rec := range report.Results {
		fmt.Fprintf(sb, "  [%-10s] %-10s %-30s %s\n", rec.Status, rec.Module, rec.Target, rec.Identity)
		if rec.Count != nil {
			fmt.Fprintf(sb, "      results: %d\n", *rec.Count)
		}
		if rec.RotationError != "" {
			fmt.Fprintf(sb, "      rotation: %s\n", rec.RotationError)
		}
		if rec.Error != "" {
			fmt.Fprintf(sb, "      error: %s\n", rec.Error)
		}
		if w.verbose {
			fmt.Fprintf(sb, "      command: %s\n", strings.Join(rec.Command, " "))
			for _, line := range rec.Data {
				fmt.Fprintf(sb, "        %s\n", line)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.RunReport) {
	s := report.Summary()
	fmt.Fprintf(sb, "SUMMARY: %d command(s): %d completed, %d attempted, %d no_results, %d failed\n",
		len(report.Results),
		s[model.StatusCompleted],
		s[model.StatusAttempted],
		s[model.StatusNoResults],
		s[model.StatusFailed],
	)
}

package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/torrecon/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// moduleOrder is the order module sections appear in.
var moduleOrder = []model.Module{model.ModulePorts, model.ModuleSubdomains}

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter
	title cases.Caser
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		title:      cases.Title(language.English),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	for _, module := range moduleOrder {
		w.writeModule(md, report, module)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("torrecon Run Report")
	md.PlainText("")

	scope := "Campaign (" + strconv.Itoa(countTargets(report)) + " targets)"
	if report.Target != "" {
		scope = "`" + report.Target + "`"
	}
	rows := [][]string{
		{"Run ID", "`" + report.RunID + "`"},
		{"Profile", string(report.Profile)},
		{"Scope", scope},
		{"Started", report.Timestamp.Format(time.RFC3339)},
	}
	if report.Proxy != nil {
		rows = append(rows,
			[]string{"SOCKS proxy", report.Proxy.Scheme + "://" + report.Proxy.Socks},
			[]string{"Control port", valueOrDash(report.Proxy.Control)},
		)
	}
	if report.IdentitySampling != "" {
		rows = append(rows, []string{"Identity sampled", string(report.IdentitySampling) + " execution"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Status Summary")
	md.PlainText("")

	summary := report.Summary()
	statuses := []model.Status{
		model.StatusCompleted,
		model.StatusAttempted,
		model.StatusNoResults,
		model.StatusFailed,
	}
	rows := make([][]string, 0, len(statuses)+1)
	for _, s := range statuses {
		rows = append(rows, []string{statusLabel(s), strconv.Itoa(summary[s])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(len(report.Results)) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(report.Results) > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Command Outcomes"),
			piechart.WithShowData(true),
		)
		for _, s := range statuses {
			if summary[s] > 0 {
				chart.LabelAndIntValue(w.title.String(strings.ReplaceAll(string(s), "_", " ")), uint64(summary[s]))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	w.writeAlert(md, report)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	failed := report.Summary()[model.StatusFailed]
	rotationFailures := 0
	unknown := 0
	for _, rec := range report.Results {
		if rec.RotationError != "" {
			rotationFailures++
		}
		if rec.Identity.IsUnknown() {
			unknown++
		}
	}

	switch {
	case failed > 0:
		md.Warningf("%d of %d command(s) failed. See the error column below.", failed, len(report.Results))
	case rotationFailures > 0:
		md.Importantf("%d command(s) ran after a failed circuit rotation and reused the previous circuit.", rotationFailures)
	case unknown > 0:
		md.Importantf("The exit identity of %d command(s) could not be determined.", unknown)
	case len(report.Results) == 0:
		md.Note("No commands were run.")
	default:
		md.Tip("Every command ran without errors.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeModule(md *markdown.Markdown, report *model.RunReport, module model.Module) {
	var records []model.ExecutionRecord
	for _, rec := range report.Results {
		if rec.Module == module {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return
	}

	md.H2(w.title.String(module.String()) + " (" + module.Tool() + ")")
	md.PlainText("")

	rows := make([][]string, len(records))
	for i, rec := range records {
		results := "-"
		if rec.Count != nil {
			results = strconv.Itoa(*rec.Count)
		}
		rows[i] = []string{
			"`" + rec.Target + "`",
			statusLabel(rec.Status),
			rec.Identity.String(),
			strconv.Itoa(rec.ExitCode),
			results,
			rotationLabel(rec),
			(time.Duration(rec.DurationMS) * time.Millisecond).String(),
			truncateString(valueOrDash(rec.Error), 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Target", "Status", "Identity", "Exit", "Results", "Rotated", "Duration", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, rec := range records {
		switch {
		case len(rec.Data) > 0:
			md.Details(fmt.Sprintf("%s: %d result(s)", rec.Target, len(rec.Data)), strings.Join(rec.Data, "\n"))
		case rec.Output != "":
			md.Details(rec.Target+": output", rec.Output)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by torrecon. Exit identities are best-effort observations, not guarantees.*")
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return "✅ completed"
	case model.StatusAttempted:
		return "▶️ attempted"
	case model.StatusNoResults:
		return "➖ no_results"
	case model.StatusFailed:
		return "❌ failed"
	default:
		return string(s)
	}
}

func rotationLabel(rec model.ExecutionRecord) string {
	switch {
	case rec.Rotated:
		return "yes"
	case rec.RotationError != "":
		return "failed"
	default:
		return "no"
	}
}

func countTargets(report *model.RunReport) int {
	seen := make(map[string]struct{})
	for _, rec := range report.Results {
		seen[rec.Target] = struct{}{}
	}
	return len(seen)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

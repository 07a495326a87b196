// Package report renders and stores RunReports.
//
// Writers render a report to an io.Writer:
//   - JSONWriter: the persisted format, pretty-printed with stable field names
//   - MarkdownWriter: a shareable summary built with nao1215/markdown
//   - SimpleWriter: a plain-text summary for the terminal
//
// Sink is the result sink. It writes {target-or-campaign}_{profile}.json
// (and optionally the .md summary) into the output directory, replacing
// any earlier file of the same name, and Load reads a report back.
package report

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/torrecon/internal/config"
	"github.com/nao1215/torrecon/internal/database"
	"github.com/nao1215/torrecon/internal/model"
	"github.com/nao1215/torrecon/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show runs stored in the history database",
		Long: `History lists the runs stored by 'torrecon scan', newest first.

Examples:
  # List the last 20 runs
  torrecon history

  # Show one run as it was written
  torrecon history --run-id 3f0c...

  # Every command run against a target, with the exit identity it used
  torrecon history --target example.com

  # How often each exit identity was seen
  torrecon history --identities`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("run-id", "", "Show the stored report with this run ID")
	cmd.Flags().String("target", "", "List every stored command against this target")
	cmd.Flags().Bool("identities", false, "Count stored commands per exit identity")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().Bool("json", false, "Output JSON")
	cmd.Flags().Bool("markdown", false, "Show a stored run as Markdown (with --run-id)")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

// historyOptions are the parsed history flags.
type historyOptions struct {
	runID      string
	target     string
	identities bool
	limit      int
	json       bool
	markdown   bool
	dbDir      string
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	v, err := newSettings(cmd)
	if err != nil {
		return err
	}
	opts := historyOptions{
		runID:      v.GetString("run-id"),
		target:     v.GetString("target"),
		identities: v.GetBool("identities"),
		limit:      v.GetInt("limit"),
		json:       v.GetBool("json"),
		markdown:   v.GetBool("markdown"),
		dbDir:      v.GetString("db-dir"),
	}
	if opts.json && opts.markdown {
		return usageError(errors.New("--json and --markdown are mutually exclusive"))
	}

	setupLogger(cmd)
	return showHistory(cmd.Context(), cmd.OutOrStdout(), opts)
}

func showHistory(ctx context.Context, w io.Writer, opts historyOptions) error {
	if _, err := os.Stat(filepath.Join(opts.dbDir, database.FileName)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(w, "No runs stored yet.")
		return nil
	}

	db, err := database.Open(opts.dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return err
	}
	defer db.Close()

	switch {
	case opts.runID != "":
		return showRun(ctx, w, db, opts)
	case opts.target != "":
		return showTargetHistory(ctx, w, db, opts)
	case opts.identities:
		return showIdentityUsage(ctx, w, db, opts)
	default:
		return listRuns(ctx, w, db, opts)
	}
}

func showRun(ctx context.Context, w io.Writer, db *database.HistoryDB, opts historyOptions) error {
	runReport, err := db.GetRun(ctx, opts.runID)
	if err != nil {
		return err
	}

	var writer report.Writer
	switch {
	case opts.json:
		writer = report.NewJSONWriter(w, report.WithPrettyPrint())
	case opts.markdown:
		writer = report.NewMarkdownWriter(w)
	default:
		writer = report.NewSimpleWriter(w, report.WithVerbose(true))
	}
	_, err = writer.Write(runReport)
	return err
}

func listRuns(ctx context.Context, w io.Writer, db *database.HistoryDB, opts historyOptions) error {
	runs, err := db.ListRuns(ctx, opts.limit)
	if err != nil {
		return err
	}
	if opts.json {
		_, err := report.NewJSONWriter(w, report.WithPrettyPrint()).WriteValue(runs)
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored yet.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-9s  %-25s  %s\n", "RUN ID", "STARTED", "PROFILE", "TARGET", "RESULTS")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-9s  %-25s  %s\n",
			r.RunID,
			r.StartedAt.Format(time.DateTime),
			r.Profile,
			r.Name,
			formatStatusSummary(r.Summary),
		)
	}
	return nil
}

func showTargetHistory(ctx context.Context, w io.Writer, db *database.HistoryDB, opts historyOptions) error {
	target, err := model.NormalizeTarget(opts.target)
	if err != nil {
		return usageError(err)
	}
	executions, err := db.TargetHistory(ctx, target)
	if err != nil {
		return err
	}
	if opts.json {
		_, err := report.NewJSONWriter(w, report.WithPrettyPrint()).WriteValue(executions)
		return err
	}
	if len(executions) == 0 {
		fmt.Fprintf(w, "No commands stored for %s.\n", target)
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-10s  %-10s  %-39s  %-7s  %s\n", "STARTED", "MODULE", "STATUS", "IDENTITY", "ROTATED", "RUN ID")
	for _, e := range executions {
		fmt.Fprintf(w, "%-20s  %-10s  %-10s  %-39s  %-7s  %s\n",
			e.StartedAt.Format(time.DateTime),
			e.Module,
			e.Status,
			e.Identity,
			strconv.FormatBool(e.Rotated),
			e.RunID,
		)
	}
	return nil
}

func showIdentityUsage(ctx context.Context, w io.Writer, db *database.HistoryDB, opts historyOptions) error {
	usage, err := db.IdentityUsage(ctx)
	if err != nil {
		return err
	}
	if opts.json {
		_, err := report.NewJSONWriter(w, report.WithPrettyPrint()).WriteValue(usage)
		return err
	}
	if len(usage) == 0 {
		fmt.Fprintln(w, "No commands stored yet.")
		return nil
	}
	fmt.Fprintf(w, "%-39s  %s\n", "IDENTITY", "COMMANDS")
	for _, u := range usage {
		fmt.Fprintf(w, "%-39s  %d\n", u.Identity, u.Count)
	}
	return nil
}

// formatStatusSummary renders non-zero status counts in a fixed order.
func formatStatusSummary(summary map[model.Status]int) string {
	order := []model.Status{
		model.StatusCompleted,
		model.StatusAttempted,
		model.StatusNoResults,
		model.StatusFailed,
	}
	out := ""
	for _, s := range order {
		if n := summary[s]; n > 0 {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%d %s", n, s)
		}
	}
	if out == "" {
		return "no commands"
	}
	return out
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/torrecon/internal/model"
)

// FileName is the name of the history database file.
const FileName = "torrecon.db"

// ErrRunNotFound is returned when no run with the requested ID is stored.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores run reports in SQLite.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per run; report_json is the document written to disk
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		profile TEXT NOT NULL,
		started_at TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		status_summary TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);

	-- One row per execution record
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		target TEXT NOT NULL,
		module TEXT NOT NULL,
		identity TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		rotated INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		digest TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exec_run ON executions(run_id);
	CREATE INDEX IF NOT EXISTS idx_exec_target ON executions(target);
	CREATE INDEX IF NOT EXISTS idx_exec_identity ON executions(identity);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRunReport stores a report and its execution records in one
// transaction. Saving the same run ID twice replaces the earlier copy.
func (h *HistoryDB) SaveRunReport(ctx context.Context, report *model.RunReport) (err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	summary := report.Summary()
	summaryJSON, _ := json.Marshal(summary) //nolint:errcheck,errchkjson // map[Status]int always marshals

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM executions WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, name, profile, started_at, record_count, failed_count, status_summary, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.Name(),
		string(report.Profile),
		formatTimestamp(report.Timestamp),
		len(report.Results),
		summary[model.StatusFailed],
		string(summaryJSON),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO executions (run_id, seq, target, module, identity, status, exit_code, rotated, started_at, digest)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare execution insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range report.Results {
		_, err = stmt.ExecContext(ctx,
			report.RunID,
			i,
			rec.Target,
			string(rec.Module),
			rec.Identity.String(),
			string(rec.Status),
			rec.ExitCode,
			rec.Rotated,
			formatTimestamp(rec.StartedAt),
			rec.Digest,
		)
		if err != nil {
			return fmt.Errorf("failed to save execution %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunMetadata summarizes a stored run without loading the full report.
type RunMetadata struct {
	// ID is the database row ID.
	ID int64 `json:"id"`

	// RunID is the report's run ID.
	RunID string `json:"run_id"`

	// Name is the target, or "campaign".
	Name string `json:"name"`

	// Profile is the scan profile used.
	Profile model.ProfileName `json:"profile"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Records is the number of execution records.
	Records int `json:"records"`

	// Failed is the number of failed records.
	Failed int `json:"failed"`

	// Summary counts records by status.
	Summary map[model.Status]int `json:"summary"`
}

// ListRuns returns stored runs, newest first. A limit of zero or less
// returns every run.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, run_id, name, profile, started_at, record_count, failed_count, status_summary
	FROM runs
	ORDER BY started_at DESC, id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta        RunMetadata
			profile     string
			startedAt   string
			summaryJSON sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.RunID, &meta.Name, &profile, &startedAt,
			&meta.Records, &meta.Failed, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.Profile = model.ProfileName(profile)
		meta.StartedAt = parseTimestamp(startedAt)
		meta.Summary = make(map[model.Status]int)
		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &meta.Summary); err != nil {
				meta.Summary = make(map[model.Status]int)
			}
		}
		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetRun returns the stored report with the given run ID, or
// ErrRunNotFound.
func (h *HistoryDB) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE run_id = ?`, runID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ExecutionSummary is one stored execution record.
type ExecutionSummary struct {
	RunID     string         `json:"run_id"`
	Target    string         `json:"target"`
	Module    model.Module   `json:"module"`
	Identity  model.Identity `json:"identity"`
	Status    model.Status   `json:"status"`
	ExitCode  int            `json:"exit_code"`
	Rotated   bool           `json:"rotated"`
	StartedAt time.Time      `json:"started_at"`
	Digest    string         `json:"digest"`
}

// TargetHistory returns every stored execution against target, newest first.
func (h *HistoryDB) TargetHistory(ctx context.Context, target string) ([]ExecutionSummary, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT run_id, target, module, identity, status, exit_code, rotated, started_at, digest
	FROM executions
	WHERE target = ?
	ORDER BY started_at DESC, id DESC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query target history: %w", err)
	}
	defer rows.Close()

	var results []ExecutionSummary
	for rows.Next() {
		var (
			es                               ExecutionSummary
			module, identity, status, starts string
		)
		if err := rows.Scan(&es.RunID, &es.Target, &module, &identity, &status,
			&es.ExitCode, &es.Rotated, &starts, &es.Digest); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		es.Module = model.Module(module)
		es.Identity = model.NewIdentity(identity)
		es.Status = model.Status(status)
		es.StartedAt = parseTimestamp(starts)
		results = append(results, es)
	}

	return results, rows.Err()
}

// IdentityCount is the number of executions seen from one exit identity.
type IdentityCount struct {
	Identity model.Identity `json:"identity"`
	Count    int            `json:"count"`
}

// IdentityUsage counts stored executions per exit identity, most used
// first. Repeated identities across targets show where rotation did not
// change the exit.
func (h *HistoryDB) IdentityUsage(ctx context.Context) ([]IdentityCount, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT identity, COUNT(*) AS n
	FROM executions
	GROUP BY identity
	ORDER BY n DESC, identity ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity usage: %w", err)
	}
	defer rows.Close()

	var results []IdentityCount
	for rows.Next() {
		var (
			label string
			ic    IdentityCount
		)
		if err := rows.Scan(&label, &ic.Count); err != nil {
			return nil, fmt.Errorf("failed to scan identity usage: %w", err)
		}
		ic.Identity = model.NewIdentity(label)
		results = append(results, ic)
	}

	return results, rows.Err()
}

// formatTimestamp stores times as fixed-width UTC text so that string
// order matches time order.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	"2006-01-02T15:04:05.000000000Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats and returns the zero time if none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

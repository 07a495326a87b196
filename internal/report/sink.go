package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/torrecon/internal/model"
)

// File permissions for stored results. Reports reveal targets and exit
// addresses, so they are private to the operator.
const (
	dirMode  os.FileMode = 0o750
	fileMode os.FileMode = 0o600
)

// Sink writes run reports into a directory.
type Sink struct {
	dir      string
	markdown bool
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithMarkdown also writes a Markdown summary next to the JSON file.
func WithMarkdown(enabled bool) SinkOption {
	return func(s *Sink) {
		s.markdown = enabled
	}
}

// NewSink creates a Sink for dir. The directory is created on first write.
func NewSink(dir string, opts ...SinkOption) *Sink {
	s := &Sink{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseName returns "{target-or-campaign}_{profile}" with characters that
// are unsafe in file names replaced by underscores.
func BaseName(report *model.RunReport) string {
	return safeName(report.Name()) + "_" + safeName(string(report.Profile))
}

// Path returns the JSON path the report is written to.
func (s *Sink) Path(report *model.RunReport) string {
	return filepath.Join(s.dir, BaseName(report)+".json")
}

// Write stores the report and returns the paths written, JSON first. An
// existing file with the same name is replaced.
func (s *Sink) Write(report *model.RunReport) ([]string, error) {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	jsonPath := s.Path(report)
	if err := writeFile(jsonPath, func(f *os.File) error {
		_, err := NewJSONWriter(f, WithPrettyPrint()).Write(report)
		return err
	}); err != nil {
		return nil, err
	}
	paths := []string{jsonPath}

	if s.markdown {
		mdPath := strings.TrimSuffix(jsonPath, ".json") + ".md"
		if err := writeFile(mdPath, func(f *os.File) error {
			_, err := NewMarkdownWriter(f).Write(report)
			return err
		}); err != nil {
			return paths, err
		}
		paths = append(paths, mdPath)
	}
	return paths, nil
}

func writeFile(path string, render func(*os.File) error) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode) //nolint:gosec // path is built from a sanitized name
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	// An earlier run may have left the file with wider permissions.
	if err := f.Chmod(fileMode); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := render(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Load reads a report written by Sink.Write.
func Load(path string) (*model.RunReport, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided report path
	if err != nil {
		return nil, err
	}
	var report model.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if report.Results == nil {
		report.Results = make([]model.ExecutionRecord, 0)
	}
	return &report, nil
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

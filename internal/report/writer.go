package report

import (
	"io"

	"github.com/nao1215/torrecon/internal/model"
)

// Writer renders a run report to its destination.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *model.RunReport) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

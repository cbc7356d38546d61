package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ExportHeader is the column layout of every CSV export.
var ExportHeader = []string{"task", "path_type", "attempt_number", "point_idx", "timestamp", "x", "y", "z"}

// CSVWriter wraps csv.Writer with methods for attempt export output.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a CSVWriter over the given destination.
func NewCSVWriter(dst io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(dst)}
}

// WriteHeader writes the export header row.
func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(ExportHeader)
}

// WriteRow writes a single export row. Positions use 6 decimal places and
// timestamps 3; guide rows leave attempt_number and timestamp empty.
func (c *CSVWriter) WriteRow(row ExportRow) error {
	attempt := ""
	elapsed := ""
	if row.PathType == PathTypeUser {
		attempt = strconv.Itoa(row.AttemptNumber)
		elapsed = fmt.Sprintf("%.3f", row.Elapsed)
	}
	return c.w.Write([]string{
		row.Task,
		row.PathType,
		attempt,
		strconv.Itoa(row.PointIdx),
		elapsed,
		fmt.Sprintf("%.6f", row.X),
		fmt.Sprintf("%.6f", row.Y),
		fmt.Sprintf("%.6f", row.Z),
	})
}

// WriteRows writes the header followed by every row and flushes.
func (c *CSVWriter) WriteRows(rows []ExportRow) error {
	if err := c.WriteHeader(); err != nil {
		return err
	}
	for _, row := range rows {
		if err := c.WriteRow(row); err != nil {
			return err
		}
	}
	return c.Flush()
}

// Flush flushes buffered rows and returns any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// ExportStepFile writes one step's rows to a timestamped CSV file in dir.
// Returns the written path.
func ExportStepFile(dir string, step Step, rows []ExportRow, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.csv", step.String(), at.Format("20060102T150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := NewCSVWriter(f).WriteRows(rows); err != nil {
		return "", fmt.Errorf("write export rows: %w", err)
	}
	return path, nil
}

// ExportSessionFile writes the cumulative rows of every step that has
// recorded attempts to a single CSV file in dir. Returns the written path.
func ExportSessionFile(dir, sessionID string, rows []ExportRow, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name := fmt.Sprintf("session_%s_%s.csv", sessionID, at.Format("20060102T150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := NewCSVWriter(f).WriteRows(rows); err != nil {
		return "", fmt.Errorf("write export rows: %w", err)
	}
	return path, nil
}

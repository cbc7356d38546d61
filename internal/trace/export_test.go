package trace

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCSVWriter_RowFormatting(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)

	rows := []ExportRow{
		{Task: "straight_1", PathType: PathTypeGuide, PointIdx: 0, X: 0.2, Y: 0, Z: 1.1},
		{Task: "straight_1", PathType: PathTypeUser, AttemptNumber: 3, PointIdx: 1, Elapsed: 1.25, X: 0.123456789, Y: -0.5, Z: 1.1},
	}
	if err := w.WriteRows(rows); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
	if lines[0] != strings.Join(ExportHeader, ",") {
		t.Errorf("header = %q", lines[0])
	}

	// Guide rows leave attempt_number and timestamp empty.
	if lines[1] != "straight_1,guide,,0,,0.200000,0.000000,1.100000" {
		t.Errorf("guide row = %q", lines[1])
	}

	// User rows carry the attempt and elapsed seconds; positions keep six
	// decimals, timestamps three.
	if lines[2] != "straight_1,user,3,1,1.250,0.123457,-0.500000,1.100000" {
		t.Errorf("user row = %q", lines[2])
	}
}

func TestExportStepFile(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	rows := []ExportRow{
		{Task: "zigzag_beginner", PathType: PathTypeGuide, PointIdx: 0},
		{Task: "zigzag_beginner", PathType: PathTypeUser, AttemptNumber: 1, PointIdx: 0, Elapsed: 0.5, X: 0.1},
	}
	path, err := ExportStepFile(dir, ZigzagBeginner, rows, at)
	if err != nil {
		t.Fatalf("ExportStepFile: %v", err)
	}
	if filepath.Base(path) != "zigzag_beginner_20260314T092653.csv" {
		t.Errorf("file name = %q", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}
	if records[2][0] != "zigzag_beginner" || records[2][1] != PathTypeUser {
		t.Errorf("user record = %v", records[2])
	}
}

func TestExportStepFile_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	_, err := ExportStepFile(dir, Straight1, nil, time.Now())
	if err != nil {
		t.Fatalf("ExportStepFile into missing dir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("export dir not created: %v", err)
	}
}

func TestExportSessionFile(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	path, err := ExportSessionFile(dir, "abc123", []ExportRow{{Task: "straight_1", PathType: PathTypeGuide}}, at)
	if err != nil {
		t.Fatalf("ExportSessionFile: %v", err)
	}
	if filepath.Base(path) != "session_abc123_20260314T100000.csv" {
		t.Errorf("file name = %q", filepath.Base(path))
	}
}

// Package db persists sessions and completed trace attempts to sqlite.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/motion.report/internal/trace"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path and applies the
// embedded migrations.
func NewDB(path string) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateUp(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// OpenDB opens the sqlite database at path without touching the schema.
// Used by the migrate subcommands, which manage the schema themselves.
func OpenDB(path string) (*DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer (the engine goroutine), many readers (API handlers).
	if _, err := database.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		database.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return &DB{database}, nil
}

// InsertSession records a new session. Inserting an existing session ID is
// a no-op so the engine can call this lazily.
func (db *DB) InsertSession(sessionID string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, startedAt.UTC(),
	)
	return err
}

// CompleteSession stamps the session's completion time.
func (db *DB) CompleteSession(sessionID string, completedAt time.Time) error {
	_, err := db.Exec(
		`UPDATE sessions SET completed_at = ? WHERE session_id = ?`,
		completedAt.UTC(), sessionID,
	)
	return err
}

// SaveAttempt stores a completed attempt with its full point list in one
// transaction. Satisfies the engine's attempt sink.
func (db *DB) SaveAttempt(sessionID string, attempt *trace.TraceAttempt) error {
	if err := db.InsertSession(sessionID, attempt.Timestamp); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO attempts (
			session_id, task, attempt_number, duration_s, total_length_m,
			max_deviation_m, avg_deviation_m, point_count,
			start_x, start_y, start_z, end_x, end_y, end_z, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, attempt.Step.String(), attempt.AttemptNumber,
		attempt.Duration(), attempt.TotalLength,
		attempt.MaxDeviation, attempt.AverageDeviation, len(attempt.Points),
		attempt.Endpoints.Start.X, attempt.Endpoints.Start.Y, attempt.Endpoints.Start.Z,
		attempt.Endpoints.End.X, attempt.Endpoints.End.Y, attempt.Endpoints.End.Z,
		attempt.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	attemptID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("attempt id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO attempt_points (attempt_id, point_idx, elapsed_s, x, y, z)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()

	for i, p := range attempt.Points {
		if _, err := stmt.Exec(attemptID, i, p.Elapsed, p.Position.X, p.Position.Y, p.Position.Z); err != nil {
			return fmt.Errorf("insert point %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// AttemptRecord is one stored attempt row.
type AttemptRecord struct {
	AttemptID        int64     `json:"attempt_id"`
	SessionID        string    `json:"session_id"`
	Task             string    `json:"task"`
	AttemptNumber    int       `json:"attempt_number"`
	Duration         float64   `json:"duration_s"`
	TotalLength      float64   `json:"total_length_m"`
	MaxDeviation     float64   `json:"max_deviation_m"`
	AverageDeviation float64   `json:"avg_deviation_m"`
	PointCount       int       `json:"point_count"`
	StartX           float64   `json:"start_x"`
	StartY           float64   `json:"start_y"`
	StartZ           float64   `json:"start_z"`
	EndX             float64   `json:"end_x"`
	EndY             float64   `json:"end_y"`
	EndZ             float64   `json:"end_z"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// SessionAttempts returns every stored attempt of a session in task and
// attempt order.
func (db *DB) SessionAttempts(sessionID string) ([]AttemptRecord, error) {
	rows, err := db.Query(
		`SELECT attempt_id, session_id, task, attempt_number, duration_s,
			total_length_m, max_deviation_m, avg_deviation_m, point_count,
			start_x, start_y, start_z, end_x, end_y, end_z, recorded_at
		 FROM attempts WHERE session_id = ?
		 ORDER BY task, attempt_number, attempt_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		if err := rows.Scan(
			&r.AttemptID, &r.SessionID, &r.Task, &r.AttemptNumber, &r.Duration,
			&r.TotalLength, &r.MaxDeviation, &r.AverageDeviation, &r.PointCount,
			&r.StartX, &r.StartY, &r.StartZ, &r.EndX, &r.EndY, &r.EndZ, &r.RecordedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PointRecord is one stored trace point.
type PointRecord struct {
	PointIdx int     `json:"point_idx"`
	Elapsed  float64 `json:"elapsed_s"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

// AttemptPoints returns the stored points of one attempt in index order.
func (db *DB) AttemptPoints(attemptID int64) ([]PointRecord, error) {
	rows, err := db.Query(
		`SELECT point_idx, elapsed_s, x, y, z
		 FROM attempt_points WHERE attempt_id = ? ORDER BY point_idx`,
		attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PointRecord
	for rows.Next() {
		var p PointRecord
		if err := rows.Scan(&p.PointIdx, &p.Elapsed, &p.X, &p.Y, &p.Z); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TaskSummary aggregates a session's attempts for one task.
type TaskSummary struct {
	Task             string  `json:"task"`
	Attempts         int     `json:"attempts"`
	AverageDuration  float64 `json:"avg_duration_s"`
	AverageLength    float64 `json:"avg_length_m"`
	MaxDeviation     float64 `json:"max_deviation_m"`
	AverageDeviation float64 `json:"avg_deviation_m"`
}

// SessionSummary returns per-task aggregates for a session.
func (db *DB) SessionSummary(sessionID string) ([]TaskSummary, error) {
	rows, err := db.Query(
		`SELECT task, COUNT(*), AVG(duration_s), AVG(total_length_m),
			MAX(max_deviation_m), AVG(avg_deviation_m)
		 FROM attempts WHERE session_id = ?
		 GROUP BY task ORDER BY task`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskSummary
	for rows.Next() {
		var s TaskSummary
		if err := rows.Scan(&s.Task, &s.Attempts, &s.AverageDuration,
			&s.AverageLength, &s.MaxDeviation, &s.AverageDeviation); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

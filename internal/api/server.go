package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/trace"
	"github.com/banshee-data/motion.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine *trace.Engine
	db     *db.DB
	tuning *config.TuningConfig
	units  string
}

// NewServer builds the HTTP surface over the tracing engine. db may be nil
// when persistence is disabled.
func NewServer(engine *trace.Engine, database *db.DB, tuning *config.TuningConfig, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.Meters
	}
	return &Server{
		engine: engine,
		db:     database,
		tuning: tuning,
		units:  displayUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/session/start", s.startSession)
	mux.HandleFunc("/api/session/stop", s.stopSession)
	mux.HandleFunc("/api/session/reset", s.resetSession)
	mux.HandleFunc("/api/session/next", s.nextStep)
	mux.HandleFunc("/api/attempts", s.listAttempts)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/export", s.exportCSV)
	mux.HandleFunc("/api/charts/deviation", s.deviationChart)
	mux.HandleFunc("/api/params", s.showParams)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "ok")
}

// showSession returns the engine's current snapshot.
func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.engine.Snapshot()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write session")
		return
	}
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, action func()) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	action()
	io.WriteString(w, "ok")
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.engine.ForceStart)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.engine.ForceStop)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.engine.ResetVisualizations)
}

func (s *Server) nextStep(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.engine.NextStep)
}

// listAttempts returns the stored attempts of a session. Defaults to the
// live session when session_id is absent.
func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence disabled")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = s.engine.SessionID()
	}

	attempts, err := s.db.SessionAttempts(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve attempts: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(attempts); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write attempts")
		return
	}
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence disabled")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = s.engine.SessionID()
	}

	summary, err := s.db.SessionSummary(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve summary: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write summary")
		return
	}
}

// exportCSV streams guide and trace points as CSV. scope=step (default)
// exports one step; scope=session exports every step with attempts.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rows []trace.ExportRow
	var filename string

	switch scope := r.URL.Query().Get("scope"); scope {
	case "session":
		rows = s.engine.AllExportRows()
		filename = fmt.Sprintf("session_%s.csv", s.engine.SessionID())

	case "", "step":
		step := s.engine.Snapshot().Step
		if name := r.URL.Query().Get("step"); name != "" {
			parsed, ok := stepByName(name)
			if !ok {
				http.Error(w, fmt.Sprintf("Unknown step %q", name), http.StatusBadRequest)
				return
			}
			step = parsed
		}
		rows = s.engine.StepExportRows(step)
		filename = fmt.Sprintf("%s.csv", step)

	default:
		http.Error(w, fmt.Sprintf("Unknown scope %q", scope), http.StatusBadRequest)
		return
	}

	if len(rows) == 0 {
		http.Error(w, "No completed attempts to export", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := trace.NewCSVWriter(w).WriteRows(rows); err != nil {
		log.Printf("export write failed: %v", err)
	}
}

func stepByName(name string) (trace.Step, bool) {
	for step := trace.Step(0); int(step) < trace.NumSteps; step++ {
		if step.String() == name {
			return step, true
		}
	}
	return 0, false
}

// showParams returns the effective tuning parameters.
func (s *Server) showParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	params := map[string]interface{}{
		"units":                  s.units,
		"movement_tolerance":     s.tuning.GetMovementTolerance(),
		"required_hold_duration": s.tuning.GetRequiredHoldDuration().Seconds(),
		"initial_grace_duration": s.tuning.GetInitialGraceDuration().Seconds(),
		"sample_timeout":         s.tuning.GetSampleTimeout().Seconds(),
		"proximity_threshold":    s.tuning.GetProximityThreshold(),
		"forward_min_distance":   s.tuning.GetForwardMinDistance(),
		"reveal_duration":        s.tuning.GetRevealDuration().Seconds(),
		"min_record_spacing":     s.tuning.GetMinRecordSpacing(),
		"point_spacing":          s.tuning.GetPointSpacing(),
		"max_path_points":        s.tuning.GetMaxPathPoints(),
		"step_path_length":       s.tuning.GetStepPathLength(),
		"attempts_per_step":      s.tuning.GetAttemptsPerStep(),
	}

	if err := json.NewEncoder(w).Encode(params); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write params")
		return
	}
}

// Package api exposes the HTTP surface: upload processing with progress
// streaming, manual splits, session listing and review, and project
// management.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/progress"
	"github.com/banshee-data/motion.report/internal/segment"
	"github.com/banshee-data/motion.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db       *db.DB
	proc     *segment.Processor
	progress *progress.Store
}

func NewServer(database *db.DB, proc *segment.Processor) *Server {
	return &Server{
		db:       database,
		proc:     proc,
		progress: proc.Progress,
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
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
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
	mux.HandleFunc("/api/process", s.startProcessing)
	mux.HandleFunc("/api/process/status", s.processingStatus)
	mux.HandleFunc("/api/process/events", s.processingEvents)
	mux.HandleFunc("/api/split", s.splitSession)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/session", s.getSession)
	mux.HandleFunc("/api/session/bouts", s.appendBouts)
	mux.HandleFunc("/api/session/flags", s.setReviewFlags)
	mux.HandleFunc("/api/session/root", s.rootSession)
	mux.HandleFunc("/api/projects", s.projects)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

// idParam parses a required int64 query parameter, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		httputil.BadRequest(w, "Missing '"+name+"' parameter")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		httputil.BadRequest(w, "Invalid '"+name+"' parameter")
		return 0, false
	}
	return id, true
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"gap_minutes": s.proc.GapThreshold.Minutes(),
		"target_hz":   s.proc.TargetHz,
		"version":     version.Version,
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/progress"
)

// startProcessing kicks off background ingestion of a project's unprocessed
// session directories and returns a tracking token immediately. The run is
// not cancellable; abandoning the progress channel does not stop it.
func (s *Server) startProcessing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	projectID, ok := idParam(w, r, "project_id")
	if !ok {
		return
	}
	if _, err := s.db.GetProject(r.Context(), projectID); err != nil {
		httputil.NotFound(w, fmt.Sprintf("Project %d not found", projectID))
		return
	}

	token := uuid.NewString()
	s.progress.Set(token, progress.Event{Status: progress.StatusProcessing})

	// Detached from the request context: the run outlives the response.
	go s.proc.ProcessProject(context.Background(), projectID, token)

	httputil.WriteJSONAccepted(w, map[string]string{"token": token})
}

// processingStatus returns the latest progress snapshot for a token. Once a
// terminal state has been read its token is released.
func (s *Server) processingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.BadRequest(w, "Missing 'token' parameter")
		return
	}

	ev, ok := s.progress.Get(token)
	if !ok {
		httputil.NotFound(w, "Unknown processing token")
		return
	}
	httputil.WriteJSONOK(w, ev)

	if ev.Status == progress.StatusComplete || ev.Status == progress.StatusError {
		s.progress.Delete(token)
	}
}

// processingEvents streams progress updates for a token as server-sent
// events, ending after the terminal complete or error event.
func (s *Server) processingEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.BadRequest(w, "Missing 'token' parameter")
		return
	}

	current, known := s.progress.Get(token)
	if !known {
		httputil.NotFound(w, "Unknown processing token")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.progress.Subscribe(token)
	defer s.progress.Unsubscribe(token, id)

	flusher, _ := w.(http.Flusher)
	send := func(ev progress.Event) bool {
		payload, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return ev.Status == progress.StatusProcessing
	}

	// Replay the latest state so late subscribers start from truth.
	if !send(current) {
		s.progress.Delete(token)
		return
	}

	for {
		select {
		case ev, ok := <-c:
			if !ok {
				return
			}
			if !send(ev) {
				s.progress.Delete(token)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

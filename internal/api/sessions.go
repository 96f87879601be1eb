package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/motion.report/internal/bouts"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/segment"
	"github.com/banshee-data/motion.report/internal/timeseries"
)

type splitRequest struct {
	SplitPoints []int64 `json:"split_points"`
}

type splitResponse struct {
	NewSessions []string `json:"new_sessions"`
}

// splitSession performs a user-requested split. Runs synchronously within
// the request; manual splits operate on one known session and fail loudly.
func (s *Server) splitSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sessionID, ok := idParam(w, r, "session_id")
	if !ok {
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid request body")
		return
	}
	if len(req.SplitPoints) == 0 {
		httputil.BadRequest(w, "No split points provided")
		return
	}

	names, err := s.proc.SplitSession(r.Context(), sessionID, req.SplitPoints)
	switch {
	case err == nil:
		httputil.WriteJSONOK(w, splitResponse{NewSessions: names})
	case errors.Is(err, segment.ErrNotEnoughSegments):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, db.ErrAlreadySplit):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, timeseries.ErrInvalidSession):
		httputil.BadRequest(w, fmt.Sprintf("Session data is invalid: %v", err))
	default:
		httputil.InternalServerError(w, fmt.Sprintf("Failed to split session: %v", err))
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	projectID, ok := idParam(w, r, "project_id")
	if !ok {
		return
	}
	includeSplit := r.URL.Query().Get("include_split") == "true"

	sessions, err := s.db.ListSessions(r.Context(), projectID, includeSplit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sessionID, ok := idParam(w, r, "session_id")
	if !ok {
		return
	}

	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("Session %d not found", sessionID))
		return
	}
	httputil.WriteJSONOK(w, session)
}

// appendBouts merges additional bouts onto a session. The body accepts the
// same tolerant shapes as labels.json. Existing bouts are never rewritten.
func (s *Server) appendBouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sessionID, ok := idParam(w, r, "session_id")
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, "Failed to read request body")
		return
	}
	add, err := bouts.Decode(body)
	if err != nil {
		httputil.BadRequest(w, "Invalid bouts payload")
		return
	}
	for i := range add {
		add[i] = add[i].Normalize()
	}

	if err := s.db.AppendBouts(r.Context(), sessionID, add); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to append bouts: %v", err))
		return
	}

	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to reload session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, session.Bouts)
}

type reviewFlagsRequest struct {
	Keep     *int `json:"keep"`
	Verified *int `json:"verified"`
}

func (s *Server) setReviewFlags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sessionID, ok := idParam(w, r, "session_id")
	if !ok {
		return
	}

	var req reviewFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid request body")
		return
	}
	if req.Keep == nil && req.Verified == nil {
		httputil.BadRequest(w, "Nothing to update")
		return
	}

	if err := s.db.SetReviewFlags(r.Context(), sessionID, req.Keep, req.Verified); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to update review flags: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

// rootSession resolves a session's lineage root: the original recording it
// was (transitively) split from, and whether any split happened at all.
func (s *Server) rootSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sessionID, ok := idParam(w, r, "session_id")
	if !ok {
		return
	}

	name, isVirtual, err := s.db.RootSession(r.Context(), sessionID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("Session %d not found", sessionID))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"root_session_name": name,
		"is_virtual":        isVirtual,
	})
}

type createProjectRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) projects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.db.ListProjects(r.Context())
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to list projects: %v", err))
			return
		}
		if projects == nil {
			projects = []db.Project{}
		}
		httputil.WriteJSONOK(w, projects)

	case http.MethodPost:
		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "Invalid request body")
			return
		}
		if req.Name == "" || req.Path == "" {
			httputil.BadRequest(w, "Both 'name' and 'path' are required")
			return
		}

		if err := s.proc.FS.MkdirAll(filepath.Clean(req.Path), 0755); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to create project directory: %v", err))
			return
		}

		project := &db.Project{Name: req.Name, Path: filepath.Clean(req.Path)}
		if err := s.db.CreateProject(r.Context(), project); err != nil {
			if db.IsUniqueConstraint(err) {
				httputil.Conflict(w, fmt.Sprintf("Project %q already exists", req.Name))
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("Failed to create project: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, project)

	default:
		httputil.MethodNotAllowed(w)
	}
}

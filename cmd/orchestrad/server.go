package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/petrijr/orchestra/pkg/api"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// server exposes the engine over HTTP with JSON bodies.
type server struct {
	eng     api.Engine
	metrics *api.BasicMetrics
	logger  *slog.Logger
}

func newServer(eng api.Engine, metrics *api.BasicMetrics, logger *slog.Logger) *server {
	return &server{eng: eng, metrics: metrics, logger: logger}
}

type statusResponse struct {
	System  api.SystemStatus         `json:"system"`
	Metrics api.BasicMetricsSnapshot `json:"metrics"`
}

type createSessionRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

type updateSessionRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Status      *api.SessionStatus `json:"status"`
	Metadata    map[string]any     `json:"metadata"`
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type allocateRequest struct {
	ResourceID string  `json:"resource_id"`
	Amount     float64 `json:"amount"`
}

type taskResponse struct {
	ID string `json:"id"`
}

type releaseResponse struct {
	Released bool `json:"released"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /sessions/{id}/report", s.handleReport)
	mux.HandleFunc("POST /sessions/{id}/runs/{workflow}", s.handleExecute)
	mux.HandleFunc("POST /sessions/{id}/tasks", s.handleAddTask)
	mux.HandleFunc("POST /sessions/{id}/projects", s.handleCreateProject)
	mux.HandleFunc("GET /sessions/{id}/resources", s.handleSessionResources)
	mux.HandleFunc("POST /sessions/{id}/allocations", s.handleAllocate)
	mux.HandleFunc("DELETE /sessions/{id}/allocations/{resource}", s.handleRelease)

	mux.HandleFunc("POST /workflows", s.handleRegisterWorkflow)
	mux.HandleFunc("POST /resources", s.handleAddResource)
	mux.HandleFunc("GET /projects", s.handleProjects)
	mux.HandleFunc("GET /projects/{name}", s.handleGetProject)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.eng.GetHealthStatus(r.Context())
	code := http.StatusOK
	if h.Status != api.HealthHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, h)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.GetSystemStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := statusResponse{System: st}
	if s.metrics != nil {
		resp.Metrics = s.metrics.Snapshot()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	status := api.SessionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, "unknown session status", http.StatusBadRequest)
		return
	}
	list, err := s.eng.ListSessions(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	sess, err := s.eng.CreateSession(r.Context(), req.Name, req.Description, req.Metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.eng.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	sess, err := s.eng.UpdateSession(r.Context(), r.PathValue("id"), api.SessionUpdate{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.CleanupSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.eng.GetSessionReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// handleExecute runs a workflow synchronously. A run with failed steps is
// still a result and is returned with 200; its status says FAILED.
func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	run, err := s.eng.ExecuteWorkflowInSession(r.Context(), r.PathValue("id"), r.PathValue("workflow"))
	if err != nil && !(errors.Is(err, api.ErrWorkflowFailed) && run != nil) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var task api.Task
	if !s.readJSON(w, r, &task) {
		return
	}
	id, err := s.eng.AddTaskToSession(r.Context(), r.PathValue("id"), task)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, taskResponse{ID: id})
}

func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	p, err := s.eng.CreateProjectInSession(r.Context(), r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleSessionResources(w http.ResponseWriter, r *http.Request) {
	res, err := s.eng.GetSessionResources(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.eng.AllocateResourcesForSession(r.Context(), r.PathValue("id"), req.ResourceID, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRelease(w http.ResponseWriter, r *http.Request) {
	released, err := s.eng.ReleaseResourcesForSession(r.Context(), r.PathValue("id"), r.PathValue("resource"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, releaseResponse{Released: released})
}

func (s *server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf api.Workflow
	if !s.readJSON(w, r, &wf) {
		return
	}
	if err := s.eng.RegisterWorkflow(r.Context(), wf); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	var res api.Resource
	if !s.readJSON(w, r, &res) {
		return
	}
	if err := s.eng.AddResource(r.Context(), res); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.eng.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.eng.GetProject(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// readJSON decodes the request body into v. On failure it writes a 400 and
// returns false.
func (s *server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		http.Error(w, fmt.Sprintf("decode body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, api.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, api.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, api.ErrCapacityExceeded), errors.Is(err, api.ErrResourceInUse):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, api.ErrShutdown):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error("Request failed.", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *server) writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("Encode response failed.", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

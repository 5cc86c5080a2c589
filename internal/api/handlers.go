package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mergeflow/internal/history"
	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/preflight"
	"mergeflow/internal/services"
	"mergeflow/internal/session"
)

const maxBodyBytes = 64 << 10

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Ready    bool               `json:"ready"`
	Checks   []preflight.Result `json:"checks"`
	Sessions int                `json:"sessions"`
}

// StartRequest is the body of POST /api/sessions/{owner}.
type StartRequest struct {
	LabelSource media.LabelSource `json:"label_source"`
}

// EventsResponse is returned by GET /api/sessions/{owner}/events.
type EventsResponse struct {
	Events      []pipeline.Event  `json:"events"`
	LastSummary *pipeline.Summary `json:"last_summary,omitempty"`
}

// HistoryResponse is returned by GET /api/history/{owner}.
type HistoryResponse struct {
	Stats *history.Stats `json:"stats,omitempty"`
	Runs  []history.Run  `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Ready: true, Sessions: len(s.deps.Sessions.List())}
	if s.deps.Status != nil {
		resp.Checks = s.deps.Status(r.Context())
		resp.Ready = len(preflight.Failed(resp.Checks)) == 0
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]session.Snapshot{"sessions": s.deps.Sessions.List()})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	var req StartRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	snap, err := s.deps.Sessions.Start(r.Context(), owner, req.LabelSource)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	snap, err := s.deps.Sessions.Get(owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	snap, err := s.deps.Sessions.Cancel(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	var spec media.FileSpec
	if !s.decodeRequired(w, r, &spec) {
		return
	}
	snap, err := s.deps.Sessions.AddFile(owner, spec)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Sessions.Advance(owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if res.Warning != "" {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, res)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	snap, err := s.deps.Sessions.Confirm(owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	resp := EventsResponse{Events: s.deps.Events.Recent(owner, queryInt(r, "limit", 0))}
	if resp.Events == nil {
		resp.Events = []pipeline.Event{}
	}
	if summary, ok := s.deps.Events.LastSummary(owner); ok {
		resp.LastSummary = &summary
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	stats, found, err := s.deps.History.Stats(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	runs, err := s.deps.History.RecentRuns(r.Context(), owner, queryInt(r, "limit", 20))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := HistoryResponse{Runs: runs}
	if resp.Runs == nil {
		resp.Runs = []history.Run{}
	}
	if found {
		resp.Stats = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}
	top, err := s.deps.History.TopOwners(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if top == nil {
		top = []history.Stats{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]history.Stats{"owners": top})
}

func (s *Server) ownerParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "owner"))
	owner, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || owner <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid owner id")
		return 0, false
	}
	return owner, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// decodeOptional accepts an empty body.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func (s *Server) decodeRequired(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func statusFor(err error) int {
	switch services.Kind(err) {
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "validation":
		return http.StatusBadRequest
	case "timeout":
		return http.StatusGatewayTimeout
	case "cancelled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", logging.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": services.Kind(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/pipeline"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type processRequest struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

var validHints = map[string]bool{
	"":                           true,
	string(classify.FormatEmail): true,
	string(classify.FormatJSON):  true,
	string(classify.FormatPDF):   true,
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxInput)

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		code := "invalid_request"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			code = "content_too_large"
		}
		writeError(w, status, code, err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	if !validHints[req.ContentType] {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown content_type "+req.ContentType)
		return
	}

	sess, err := s.proc.Process(r.Context(), []byte(req.Content), classify.FormatType(req.ContentType))
	if err != nil {
		if errors.Is(err, pipeline.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
			return
		}
		log.Error().Err(err).Msg("process_request_failed")
		writeError(w, http.StatusInternalServerError, "process_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be 1-500")
			return
		}
		limit = n
	}

	sessions, err := s.reader.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if sessions == nil {
		sessions = []session.ProcessingSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.reader.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no session "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counters, err := s.reader.Counters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"counters": counters,
		"uptime":   time.Since(s.startTime).String(),
	})
}

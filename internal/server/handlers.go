package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/dump"
	"github.com/josephgoksu/ProbeWing/internal/memory"
)

// maxBodyBytes leaves room for a full-size dump plus JSON escaping.
const maxBodyBytes = 2*dump.MaxBytes + 4096

// handleInfo
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"version":  s.opts.Version,
		"sessions": s.sessionCount(),
	})
}

// handleBackends
func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, http.StatusOK, s.opts.Backends)
}

// handleScan runs a full evolution. The request context bounds it, so a
// client that disconnects stops the scan and gets the partial run.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MaxCycles < 0 {
		writeError(w, http.StatusBadRequest, "maxCycles must not be negative")
		return
	}

	run, err := s.opts.Scan(r.Context(), req)
	switch {
	case err == nil:
		writeAPIJSON(w, http.StatusOK, ScanResponse{Run: run})
	case run != nil && errors.Is(err, context.Canceled):
		writeAPIJSON(w, http.StatusOK, ScanResponse{Run: run, Interrupted: true})
	default:
		s.logger.Warn("scan failed", "target", req.Target, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleMemory searches the store: ?q=text&tag=a&tag=b&limit=n&min=0.5
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Memory == nil {
		writeError(w, http.StatusServiceUnavailable, "memory store not configured")
		return
	}
	query := r.URL.Query()

	q := memory.Query{Text: query.Get("q"), Tags: query["tag"]}
	if v := query.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 || l > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		q.Limit = l
	}
	if v := query.Get("min"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min must be a number")
			return
		}
		q.MinImportance = m
	}

	entries, err := s.opts.Memory.Retrieve(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	writeAPIJSON(w, http.StatusOK, entries)
}

// handleCreateSession
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	autoSwitch := s.opts.AutoSwitch
	if req.AutoSwitch != nil {
		autoSwitch = *req.AutoSwitch
	}

	sess, err := s.openSession(req.Backend, autoSwitch)
	switch {
	case errors.Is(err, ErrTooManySessions):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeAPIJSON(w, http.StatusCreated, SessionResponse{ID: sess.ID(), Backend: sess.Current()})
}

// handleDeleteSession closes a session once its turn in flight and background
// reasoning finish.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.closeSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	sess.Wait()
	w.WriteHeader(http.StatusNoContent)
}

// handleMessage runs one turn on a session.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var req MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	before := len(sess.Switches())
	res, err := sess.Send(r.Context(), req.Text)
	if errors.Is(err, chat.ErrTurnInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	resp := MessageResponse{Result: res}
	if switches := sess.Switches(); len(switches) > before {
		resp.Switches = switches[before:]
	}
	status := http.StatusOK
	if res.Status == chat.StatusFailed {
		status = http.StatusBadGateway
	}
	writeAPIJSON(w, status, resp)
}

// handleHistory
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	history := sess.History()
	if history == nil {
		history = []chat.Turn{}
	}
	writeAPIJSON(w, http.StatusOK, history)
}

// handleSwitches
func (s *Server) handleSwitches(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	switches := sess.Switches()
	if switches == nil {
		switches = []chat.SwitchEvent{}
	}
	writeAPIJSON(w, http.StatusOK, switches)
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeAPIJSON(w, status, errorResponse{Error: msg})
}

func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

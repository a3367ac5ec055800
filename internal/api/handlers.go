package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/store"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// maxBody bounds request bodies; documents carry whole schemas.
const maxBody = 8 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": session.RenderDocument(doc, s.logger)})
}

type createSessionRequest struct {
	ID            string          `json:"id,omitempty"`
	InteractionID string          `json:"interaction_id,omitempty"`
	Document      json.RawMessage `json:"document"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if !readJSON(w, r, &body) {
		return
	}
	doc, err := schema.ParseDocument(body.Document)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.sessions.Create(r.Context(), session.CreateOptions{
		ID:            body.ID,
		InteractionID: body.InteractionID,
		Actor:         ActorFromContext(r.Context()),
		Document:      doc,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.sessions.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var action session.Action
	if !readJSON(w, r, &action) {
		return
	}
	if err := sess.Apply(r.Context(), action); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	if err := sess.UpdateDocument(r.Context(), doc); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req tasks.SubActionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if actor := ActorFromContext(r.Context()); actor != "" {
		req.Actor = actor
	}
	h, err := s.tasks.SubmitSubAction(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h)
}

func (s *Server) handleListInFlight(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.ListInFlight(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if list == nil {
		list = []tasks.InFlightTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	st, err := s.tasks.Task(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groups, err := s.tasks.History(r.Context(), tasks.HistoryQuery{
		SessionID:     q.Get("session_id"),
		InteractionID: q.Get("interaction_id"),
		ContentKind:   q.Get("content_kind"),
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if groups == nil {
		groups = []tasks.HistoryGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req tasks.PreviewRequest
	if !readJSON(w, r, &req) {
		return
	}
	p, err := s.tasks.Preview(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeErr(w, err)
		return nil, false
	}
	return sess, true
}

// errorStatus maps domain errors to HTTP statuses.
func errorStatus(err error) int {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, session.ErrInvalidAction),
		errors.Is(err, tasks.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, tasks.ErrTaskNotFound),
		errors.Is(err, generation.ErrUnknownPanel):
		return http.StatusNotFound
	case errors.Is(err, generation.ErrQueueFull),
		errors.Is(err, generation.ErrCropPending),
		errors.Is(err, generation.ErrNoCropPending),
		errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, ratelimit.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeErr writes err with its mapped status. Internal errors are logged
// and not echoed.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, map[string]any{"error": err.Error(), "fields": verr.Fields})
		return
	}
	writeError(w, status, err.Error())
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func readDocument(w http.ResponseWriter, r *http.Request) (schema.Document, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return schema.Document{}, false
	}
	doc, err := schema.ParseDocument(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return schema.Document{}, false
	}
	return doc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

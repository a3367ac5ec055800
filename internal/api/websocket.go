package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/store"
)

// ClientMessage is the envelope for client-to-server websocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "action", "ping"
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the envelope for server-to-client websocket messages.
type ServerMessage struct {
	Type      string `json:"type"` // "snapshot", "ack", "error", "pong"
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ErrorData is the payload of an "error" message.
type ErrorData struct {
	Status  int                `json:"status"`
	Message string             `json:"message"`
	Fields  []store.FieldError `json:"fields,omitempty"`
}

// handleWebsocket runs a bidirectional session channel: the server pushes
// a snapshot after every state change and applies actions the client
// sends.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Warn("websocket accept", "session_id", sess.ID(), "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	go s.pushSnapshots(ctx, conn, sess, updates)

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket read", "session_id", sess.ID(), "error", err)
			}
			return
		}
		switch msg.Type {
		case "action":
			var action session.Action
			if err := json.Unmarshal(msg.Data, &action); err != nil {
				s.send(ctx, conn, ServerMessage{Type: "error", RequestID: msg.ID,
					Data: ErrorData{Status: http.StatusBadRequest, Message: "invalid action"}})
				continue
			}
			if err := sess.Apply(ctx, action); err != nil {
				s.send(ctx, conn, ServerMessage{Type: "error", RequestID: msg.ID, Data: s.errorData(err)})
				continue
			}
			s.send(ctx, conn, ServerMessage{Type: "ack", RequestID: msg.ID})
		case "ping":
			s.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			s.send(ctx, conn, ServerMessage{Type: "error", RequestID: msg.ID,
				Data: ErrorData{Status: http.StatusBadRequest, Message: "unknown message type: " + msg.Type}})
		}
	}
}

// pushSnapshots sends the current plan, then one per revision change,
// and closes the connection when the session closes.
func (s *Server) pushSnapshots(ctx context.Context, conn *websocket.Conn, sess *session.Session, updates <-chan int64) {
	last := int64(-1)
	push := func() {
		snap := sess.Snapshot()
		if snap.Revision <= last {
			return
		}
		last = snap.Revision
		s.send(ctx, conn, ServerMessage{Type: "snapshot", Data: snap})
	}
	push()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-updates:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			push()
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil && ctx.Err() == nil {
		s.logger.Debug("websocket write", "type", msg.Type, "error", err)
	}
}

func (s *Server) errorData(err error) ErrorData {
	d := ErrorData{Status: errorStatus(err), Message: err.Error()}
	if d.Status == http.StatusInternalServerError {
		s.logger.Error("websocket action failed", "error", err)
		d.Message = "internal server error"
	}
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		d.Fields = verr.Fields
	}
	return d
}

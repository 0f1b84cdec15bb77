package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

const liveWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Live message types
const (
	LiveValidate  = "validate"
	LiveConnected = "connected"
	LiveResult    = "result"
	LiveError     = "error"
)

// LiveRequest is a snapshot pushed by a live client. With Store set the pass
// is recorded as a run under Name; otherwise nothing is persisted.
type LiveRequest struct {
	Type    string         `json:"type"`
	Seq     int            `json:"seq,omitempty"`
	Name    string         `json:"name,omitempty"`
	Store   bool           `json:"store,omitempty"`
	Dataset models.Dataset `json:"dataset"`
}

// LiveMessage is sent back for every request
type LiveMessage struct {
	Type     string              `json:"type"`
	Seq      int                 `json:"seq,omitempty"`
	RunID    string              `json:"run_id,omitempty"`
	Findings []models.Finding    `json:"findings,omitempty"`
	Summary  *validation.Summary `json:"summary,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// handleLiveWS validates each snapshot a client pushes over the socket. An
// editor can stream its working copy and redraw findings on every reply.
func (s *Server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.config.MaxBodyBytes)
	reqID := middleware.GetReqID(r.Context())
	slog.Info("live websocket connected", "request_id", reqID, "client", callerName(r.Context()))

	if err := s.sendLiveMessage(conn, LiveMessage{Type: LiveConnected}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var req LiveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("invalid live message", "error", err)
			if s.sendLiveMessage(conn, LiveMessage{Type: LiveError, Error: "invalid message: " + err.Error()}) != nil {
				break
			}
			continue
		}

		if err := s.sendLiveMessage(conn, s.liveReply(r, req)); err != nil {
			break
		}
	}

	slog.Info("live websocket disconnected", "request_id", reqID)
}

func (s *Server) liveReply(r *http.Request, req LiveRequest) LiveMessage {
	if req.Type != LiveValidate {
		return LiveMessage{Type: LiveError, Seq: req.Seq, Error: "unknown message type: " + req.Type}
	}

	if req.Store {
		run, err := s.runs.Validate(r.Context(), req.Name, req.Dataset)
		if err != nil {
			return LiveMessage{Type: LiveError, Seq: req.Seq, Error: err.Error()}
		}
		summary := validation.Summarize(run.Findings)
		return LiveMessage{Type: LiveResult, Seq: req.Seq, RunID: run.ID, Findings: run.Findings, Summary: &summary}
	}

	findings := s.runs.Check(req.Dataset)
	summary := validation.Summarize(findings)
	return LiveMessage{Type: LiveResult, Seq: req.Seq, Findings: findings, Summary: &summary}
}

func (s *Server) sendLiveMessage(conn *websocket.Conn, msg LiveMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal live message", "error", err)
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send live message", "error", err)
		return err
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/coaching-engine/internal/models"
)

const (
	// calculatorTimeout bounds each calculator update and each write
	calculatorTimeout = 10 * time.Second

	// An idle client must answer pings within calculatorPongWait
	calculatorPongWait   = 60 * time.Second
	calculatorPingPeriod = calculatorPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CalculatorMessage is exchanged over the calculator websocket.
// Client types: toggle, tier, roi, reset. Server types: quote, error.
type CalculatorMessage struct {
	Type      string              `json:"type"`
	ServiceID string              `json:"service_id,omitempty"`
	Tier      string              `json:"tier,omitempty"`
	Enabled   *bool               `json:"enabled,omitempty"`
	Session   *models.SessionView `json:"session,omitempty"`
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
}

func (s *Server) handleCalculatorWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	// Reject unknown sessions before upgrading
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		respondServiceError(w, err, "open calculator")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("calculator websocket connected", "session_id", sessionID)

	// The hijacked conn still carries the HTTP server deadlines; replace them
	extendRead := func() error {
		return conn.SetReadDeadline(time.Now().Add(calculatorPongWait))
	}
	if err := extendRead(); err != nil {
		slog.Debug("failed to set read deadline", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error { return extendRead() })

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	// The request context carries the HTTP timeout; updates get their own
	if err := s.sendCalculatorQuote(conn, sessionID); err != nil {
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
		if err := extendRead(); err != nil {
			break
		}

		var msg CalculatorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if s.sendCalculatorMessage(conn, CalculatorMessage{
				Type:    "error",
				Code:    "invalid_request",
				Message: "invalid message format",
			}) != nil {
				break
			}
			continue
		}

		if err := s.applyCalculatorMessage(sessionID, msg); err != nil {
			_, code, message := classifyError(err)
			if code == "internal_error" {
				slog.Error("calculator update failed", "error", err, "session_id", sessionID)
			}
			if s.sendCalculatorMessage(conn, CalculatorMessage{Type: "error", Code: code, Message: message}) != nil {
				break
			}
			if code == "not_found" {
				break
			}
			continue
		}

		if err := s.sendCalculatorQuote(conn, sessionID); err != nil {
			break
		}
	}

	slog.Info("calculator websocket disconnected", "session_id", sessionID)
}

// applyCalculatorMessage performs one client update on the session
func (s *Server) applyCalculatorMessage(sessionID string, msg CalculatorMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), calculatorTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case "toggle":
		_, err = s.sessions.ToggleService(ctx, sessionID, msg.ServiceID)
	case "tier":
		tier, parseErr := models.ParseTier(msg.Tier)
		if parseErr != nil {
			return &calculatorError{code: "invalid_tier", message: parseErr.Error()}
		}
		_, err = s.sessions.SetTier(ctx, sessionID, tier)
	case "roi":
		enabled := msg.Enabled != nil && *msg.Enabled
		_, err = s.sessions.SetROI(ctx, sessionID, enabled)
	case "reset":
		_, err = s.sessions.ResetSelection(ctx, sessionID)
	default:
		return &calculatorError{code: "invalid_request", message: "unknown message type: " + msg.Type}
	}
	return err
}

func (s *Server) sendCalculatorQuote(conn *websocket.Conn, sessionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), calculatorTimeout)
	defer cancel()

	view, err := s.sessions.View(ctx, sessionID)
	if err != nil {
		_, code, message := classifyError(err)
		s.sendCalculatorMessage(conn, CalculatorMessage{Type: "error", Code: code, Message: message})
		return err
	}
	return s.sendCalculatorMessage(conn, CalculatorMessage{Type: "quote", Session: view})
}

func (s *Server) sendCalculatorMessage(conn *websocket.Conn, msg CalculatorMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal calculator message", "error", err)
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(calculatorTimeout)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send calculator message", "error", err)
		return err
	}
	return nil
}

// keepAlive pings the client until done is closed or a ping fails
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(calculatorPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(calculatorTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				slog.Debug("calculator ping failed", "error", err)
				return
			}
		}
	}
}

// calculatorError is a protocol-level error with a fixed code
type calculatorError struct {
	code    string
	message string
}

func (e *calculatorError) Error() string {
	return e.message
}

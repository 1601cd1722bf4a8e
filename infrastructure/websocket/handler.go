// Package websocket serves the live chat sessions.
// Each connection has one read loop and one write loop; only the write loop
// touches the socket for writing.
package websocket

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxFrameBytes = 1 << 20

	frameJoin    = "join"
	frameMessage = "message"
	frameDelete  = "delete"
	frameError   = "error"
)

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Handler struct {
	log                  *slog.Logger
	chatService          services.IChatService
	connectionBufferSize int
	upgrader             websocket.Upgrader
}

func NewHandler(log *slog.Logger, chatService services.IChatService, connectionBufferSize int, allowedOrigins []string) *Handler {
	return &Handler{
		log:                  log,
		chatService:          chatService,
		connectionBufferSize: connectionBufferSize,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, "*") {
			return true
		}
		return slices.Contains(allowedOrigins, origin)
	}
}

// ServeHTTP upgrades the connection and runs the session until the client
// leaves or the server shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionSink := sink.NewSessionSink(h.connectionBufferSize)
	sessionID := h.chatService.Connect(sessionSink)
	h.log.Info("Socket connected", "session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	replies := make(chan outboundFrame, h.connectionBufferSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, sessionSink, replies)
		// A dead writer must also stop the reader
		_ = conn.Close()
	}()

	h.readLoop(ctx, conn, sessionID, replies)

	// Unregister before closing so no broadcast targets a dead sink
	h.chatService.Disconnect(sessionID)
	cancel()
	sessionSink.Close()
	<-writerDone
	h.log.Info("Socket disconnected", "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID chat.SessionID, replies chan<- outboundFrame) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("WebSocket read error", "session_id", sessionID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg, failed := h.handleFrame(ctx, sessionID, frame); failed {
			select {
			case replies <- outboundFrame{Event: frameError, Data: msg}:
			default:
				h.log.Debug("Error reply dropped", "session_id", sessionID)
			}
		}
	}
}

// handleFrame returns the error message to send back to the client, if any.
func (h *Handler) handleFrame(ctx context.Context, sessionID chat.SessionID, frame inboundFrame) (string, bool) {
	switch frame.Type {
	case frameJoin:
		var userID string
		if err := json.Unmarshal(frame.Data, &userID); err != nil || userID == "" {
			return "join expects a user identity", true
		}
		if err := h.chatService.Join(sessionID, userID); err != nil {
			return "join failed", true
		}
	case frameMessage:
		var cmd chat.PostMessageCommand
		if err := json.Unmarshal(frame.Data, &cmd); err != nil {
			return "malformed message", true
		}
		if _, err := h.chatService.PostMessage(ctx, cmd); err != nil {
			h.log.Warn("Message rejected", "session_id", sessionID, "error", err)
			return clientMessage(err), true
		}
	case frameDelete:
		var id string
		if err := json.Unmarshal(frame.Data, &id); err != nil || id == "" {
			return "delete expects a message id", true
		}
		if err := h.chatService.DeleteMessage(ctx, id); err != nil {
			return clientMessage(err), true
		}
	default:
		return "unknown frame type", true
	}
	return "", false
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sessionSink *sink.SessionSink, replies <-chan outboundFrame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-sessionSink.Done():
			if ctx.Err() != nil {
				return
			}
			h.log.Warn("Session dropped, client too slow")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"), time.Now().Add(writeWait))
			return
		case evt := <-sessionSink.Events():
			frame, ok := toFrame(evt)
			if !ok {
				continue
			}
			if err := h.write(conn, frame); err != nil {
				return
			}
		case frame := <-replies:
			if err := h.write(conn, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, frame outboundFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		h.log.Debug("WebSocket write failed", "event", frame.Event, "error", err)
		return err
	}
	return nil
}

func toFrame(e event.DomainEvent) (outboundFrame, bool) {
	switch evt := e.(type) {
	case event.MessagePosted:
		return outboundFrame{Event: evt.Name(), Data: evt.Message}, true
	case event.MessageDeleted:
		return outboundFrame{Event: evt.Name(), Data: evt.ID}, true
	default:
		return outboundFrame{}, false
	}
}

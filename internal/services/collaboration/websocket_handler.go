package collaboration

import (
	"net/http"

	"pagespace/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketHandler upgrades HTTP requests to websocket sessions and hands
// them to the hub. Identity comes pre-authenticated from the handshake query
// parameters; the realtime layer trusts it.
type WebSocketHandler struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	queueSize int
	log       zerolog.Logger
}

// NewWebSocketHandler creates a handler with the given transport buffer
// sizes and per-session send queue depth.
func NewWebSocketHandler(hub *Hub, readBufferSize, writeBufferSize, queueSize int) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// Origin checks belong to the reverse proxy in front of us.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		queueSize: queueSize,
		log:       *logging.WithComponent("collaboration.ws"),
	}
}

// HandleConnection serves one websocket session. Blocks until the
// connection closes.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	userName := r.URL.Query().Get("user_name")
	if userName == "" {
		userName = "Anonymous"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Connection ids are opaque and never reused.
	s := newSession(uuid.NewString(), h.hub, conn, h.queueSize)
	h.hub.Connect(s)
	if userID != "" {
		h.hub.Identify(s.ID, userID, userName)
	}

	h.log.Debug().
		Str("connection_id", s.ID).
		Str("user_id", userID).
		Msg("websocket connection established")

	go s.writePump()
	s.readPump(r.Context())
}

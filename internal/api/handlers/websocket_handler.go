package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/isdelr/chirper-be/internal/api/respond"
	ws "github.com/isdelr/chirper-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionTracker counts live feed connections.
type ConnectionTracker interface {
	ClientConnected()
	ClientDisconnected()
}

// WebSocketHandler upgrades authenticated requests to live feed connections.
type WebSocketHandler struct {
	hub      *ws.Hub
	tracker  ConnectionTracker
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Browser origins outside
// allowedOrigins are refused; "*" allows any origin.
func NewWebSocketHandler(hub *ws.Hub, tracker ConnectionTracker, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:     hub,
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Serve handles the WebSocket connection request.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("user_id", actor.ID).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, actor.ID)
	if !h.hub.Join(client) {
		conn.Close()
		return
	}
	h.tracker.ClientConnected()

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleIncomingWSMessage)
		h.tracker.ClientDisconnected()
	}()
}

// handleIncomingWSMessage processes messages received from a websocket client.
// The feed is push-only; clients may only ping.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("user_id", client.UserID).Msg("Error decoding websocket message")
		h.hub.Reply(client, ws.NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case "ping":
		h.hub.Reply(client, ws.Message{Action: ws.ActionPong}.Encode())
	default:
		log.Debug().Str("action", msg.Action).Msg("Unknown websocket action received")
		h.hub.Reply(client, ws.NewErrorMessage("Unknown action: "+msg.Action))
	}
}

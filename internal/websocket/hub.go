package websocket

import "github.com/rs/zerolog/log"

const broadcastBuffer = 256

// targetedMessage goes to one client, or to every client of userID when client is nil.
type targetedMessage struct {
	userID string
	client *Client
	data   []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Clients grouped by the user they authenticated as.
	byUser map[string]map[*Client]bool

	// Messages for every client.
	broadcast chan []byte

	// Messages for one user or one client.
	direct chan targetedMessage

	Register   chan *Client
	Unregister chan *Client

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		direct:     make(chan targetedMessage, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			if h.byUser[client.UserID] == nil {
				h.byUser[client.UserID] = make(map[*Client]bool)
			}
			h.byUser[client.UserID][client] = true
			log.Info().Str("user_id", client.UserID).Int("total_clients", len(h.clients)).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				log.Info().Str("user_id", client.UserID).Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				h.send(client, message)
			}
		case msg := <-h.direct:
			if msg.client != nil {
				if h.clients[msg.client] {
					h.send(msg.client, msg.data)
				}
				continue
			}
			for client := range h.byUser[msg.userID] {
				h.send(client, msg.data)
			}
		case <-h.done:
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

// Stop terminates Run and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg.Encode():
	default:
		log.Warn().Str("action", msg.Action).Msg("Broadcast queue full, dropping message")
	}
}

// BroadcastTo queues a message for the clients of one user. It never blocks.
func (h *Hub) BroadcastTo(userID string, msg Message) {
	select {
	case h.direct <- targetedMessage{userID: userID, data: msg.Encode()}:
	default:
		log.Warn().Str("action", msg.Action).Str("user_id", userID).Msg("Direct queue full, dropping message")
	}
}

// Reply queues a message for a single client. It never blocks.
func (h *Hub) Reply(client *Client, data []byte) {
	select {
	case h.direct <- targetedMessage{client: client, data: data}:
	default:
		log.Warn().Str("user_id", client.UserID).Msg("Direct queue full, dropping reply")
	}
}

// Join registers client unless the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client unless the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// send drops a client whose buffer is full.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	if subs, ok := h.byUser[client.UserID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.byUser, client.UserID)
		}
	}
	close(client.Send)
}

package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Actions sent to clients that are not activity event types.
const (
	ActionError        = "error"
	ActionNotification = "notification"
	ActionPong         = "pong"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// Encode marshals the message. A payload that cannot be encoded becomes an error message.
func (m Message) Encode() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("action", m.Action).Msg("Failed to encode websocket message")
		data, _ = json.Marshal(Message{Action: ActionError, Payload: "internal error"})
	}
	return data
}

// NewErrorMessage creates an encoded error message.
func NewErrorMessage(text string) []byte {
	return Message{Action: ActionError, Payload: text}.Encode()
}

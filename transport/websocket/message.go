package websocket

import (
	"encoding/json"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

const (
	KindManager  = "manager"
	KindGame     = "game"
	KindResponse = "response"
	KindUpdate   = "update"
)

// Message is an inbound frame. ID is echoed back on the reply to a manager action.
type Message struct {
	Kind    string          `json:"kind"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      int             `json:"id,omitempty"`
}

// Envelope is an outbound frame: a reply to a manager action or a game update.
type Envelope struct {
	Kind     string          `json:"kind"`
	ID       int             `json:"id,omitempty"`
	Response entity.Response `json:"response"`
}

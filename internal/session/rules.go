package session

import (
	"encoding/json"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

// Update is a successful rule engine result, broadcast to the whole roster.
type Update struct {
	Type    string
	Payload any
}

// Handler applies one named action. Fail is the response type sent back to the caller on error.
type Handler struct {
	Fail  string
	Apply func(origin string, payload json.RawMessage) (Update, error)
}

// Rules is a rule engine as seen by a session. A new round replaces the engine state;
// the Rules value itself lives as long as the session.
type Rules interface {
	Kind() entity.GameKind
	// Players is the exact number of participants a round needs.
	Players() int
	// Start begins a round. first is the player who acts first, or empty for the default.
	Start(playerIDs []string, first string, payload json.RawMessage) (Update, error)
	Handlers() map[string]Handler
	Running() bool
	TurnPlayer() string
	Result() (winner, loser string, tie bool)
	// Forfeit ends the running round because playerID left.
	Forfeit(playerID string) Update
	Snapshot() any
}

// typed decodes and validates the payload before handing it to apply.
func typed[T any](apply func(origin string, payload T) (Update, error)) func(string, json.RawMessage) (Update, error) {
	return func(origin string, raw json.RawMessage) (Update, error) {
		payload, err := entity.Decode[T](raw)
		if err != nil {
			return Update{}, err
		}

		return apply(origin, payload)
	}
}

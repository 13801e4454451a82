package session

import (
	"encoding/json"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/santorini"
)

const (
	ActionPlaceWorker = "place worker"
	ActionMove        = "move"
	ActionWinMove     = "win move"
)

// SantoriniRules runs a 5×5 Santorini round. The first roster player plays red.
type SantoriniRules struct {
	kind entity.GameKind
	game *santorini.Game
}

func NewSantoriniRules(kind entity.GameKind) *SantoriniRules {
	return &SantoriniRules{kind: kind}
}

func (that *SantoriniRules) Kind() entity.GameKind {
	return that.kind
}

func (that *SantoriniRules) Players() int {
	return 2
}

func (that *SantoriniRules) Start(playerIDs []string, first string, _ json.RawMessage) (Update, error) {
	side := santorini.Red
	if first != "" && len(playerIDs) > 1 && playerIDs[1] == first {
		side = santorini.Blue
	}

	game, update, err := santorini.New(playerIDs, side)
	if err != nil {
		return Update{}, err
	}

	that.game = game

	return Update{Type: update.Type, Payload: update.State}, nil
}

func (that *SantoriniRules) Handlers() map[string]Handler {
	return map[string]Handler{
		ActionPlaceWorker: {Fail: "santorini place fail", Apply: typed(that.placeWorker)},
		ActionMove:        {Fail: "santorini move fail", Apply: typed(that.move)},
		ActionWinMove:     {Fail: "santorini win move fail", Apply: typed(that.winMove)},
	}
}

func (that *SantoriniRules) placeWorker(origin string, target santorini.Coord) (Update, error) {
	if that.game == nil {
		return Update{}, apperror.ErrNotRunning
	}
	return wrap(that.game.PlaceWorker(origin, target))
}

func (that *SantoriniRules) move(origin string, move santorini.Move) (Update, error) {
	if that.game == nil {
		return Update{}, apperror.ErrNotRunning
	}
	return wrap(that.game.MakeMove(origin, move))
}

func (that *SantoriniRules) winMove(origin string, move santorini.WinMove) (Update, error) {
	if that.game == nil {
		return Update{}, apperror.ErrNotRunning
	}
	return wrap(that.game.MakeWinMove(origin, move))
}

func wrap(update santorini.Update, err error) (Update, error) {
	if err != nil {
		return Update{}, err
	}
	return Update{Type: update.Type, Payload: update.State}, nil
}

func (that *SantoriniRules) Running() bool {
	return that.game != nil && that.game.Running()
}

func (that *SantoriniRules) TurnPlayer() string {
	if that.game == nil {
		return ""
	}
	return that.game.TurnPlayer()
}

func (that *SantoriniRules) Result() (string, string, bool) {
	if that.game == nil {
		return "", "", false
	}
	winner, loser := that.game.Result()
	return winner, loser, false
}

func (that *SantoriniRules) Forfeit(playerID string) Update {
	update := that.game.Forfeit(playerID)
	return Update{
		Type:    update.Type,
		Payload: disconnectPayload{Player: playerID, Winner: update.State.Winner, State: update.State},
	}
}

func (that *SantoriniRules) Snapshot() any {
	if that.game == nil {
		return nil
	}
	return that.game.State()
}

// State returns the current board, or false before the first round.
func (that *SantoriniRules) State() (santorini.State, bool) {
	if that.game == nil {
		return santorini.State{}, false
	}
	return that.game.State(), true
}

package session

import (
	"encoding/json"
	"fmt"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/tictactoe"
)

const ActionMark = "mark"

type startPayload struct {
	Width   int `json:"width" validate:"omitempty,min=1,max=32"`
	Height  int `json:"height" validate:"omitempty,min=1,max=32"`
	WinSize int `json:"winSize" validate:"omitempty,min=1,max=32"`
}

type markPayload struct {
	X *int `json:"x" validate:"required"`
	Y *int `json:"y" validate:"required"`
}

type disconnectPayload struct {
	Player string `json:"player"`
	Winner string `json:"winner,omitempty"`
	State  any    `json:"state"`
}

// TicTacToeRules runs an N×M align-K board. Dimensions given to a start action are kept
// for later resets.
type TicTacToeRules struct {
	options tictactoe.Options
	game    *tictactoe.Game
}

func NewTicTacToeRules(options tictactoe.Options) *TicTacToeRules {
	return &TicTacToeRules{options: options}
}

func (that *TicTacToeRules) Kind() entity.GameKind {
	return entity.KindTicTacToe
}

func (that *TicTacToeRules) Players() int {
	return 2
}

func (that *TicTacToeRules) Start(playerIDs []string, first string, raw json.RawMessage) (Update, error) {
	payload, err := entity.Decode[startPayload](raw)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %w", apperror.ErrStartFail, err)
	}

	if payload.Width > 0 {
		that.options.Width = payload.Width
	}
	if payload.Height > 0 {
		that.options.Height = payload.Height
	}
	if payload.WinSize > 0 {
		that.options.WinSize = payload.WinSize
	}

	options := that.options
	options.FirstTurn = tictactoe.MarkA
	if first != "" && len(playerIDs) > 1 && playerIDs[1] == first {
		options.FirstTurn = tictactoe.MarkB
	}

	game, update, err := tictactoe.New(playerIDs, options)
	if err != nil {
		return Update{}, err
	}

	that.game = game

	return Update{Type: update.Type, Payload: update.State}, nil
}

func (that *TicTacToeRules) Handlers() map[string]Handler {
	return map[string]Handler{
		ActionMark: {Fail: "mark fail", Apply: typed(that.mark)},
	}
}

func (that *TicTacToeRules) mark(origin string, payload markPayload) (Update, error) {
	if that.game == nil {
		return Update{}, apperror.ErrNotRunning
	}

	update, err := that.game.Mark(origin, *payload.X, *payload.Y)
	if err != nil {
		return Update{}, err
	}

	return Update{Type: update.Type, Payload: update.State}, nil
}

func (that *TicTacToeRules) Running() bool {
	return that.game != nil && that.game.Running()
}

func (that *TicTacToeRules) TurnPlayer() string {
	if that.game == nil {
		return ""
	}
	return that.game.TurnPlayer()
}

func (that *TicTacToeRules) Result() (string, string, bool) {
	if that.game == nil {
		return "", "", false
	}
	return that.game.Result()
}

func (that *TicTacToeRules) Forfeit(playerID string) Update {
	update := that.game.Forfeit(playerID)
	return Update{
		Type:    update.Type,
		Payload: disconnectPayload{Player: playerID, Winner: update.State.Winner, State: update.State},
	}
}

func (that *TicTacToeRules) Snapshot() any {
	if that.game == nil {
		return nil
	}
	return that.game.State()
}

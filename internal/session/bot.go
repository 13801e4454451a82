package session

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/santorini"
)

// MoveService picks a build-phase move for the side to act in state.
type MoveService interface {
	NextMove(ctx context.Context, state santorini.State) (santorini.Move, error)
}

// placementOrder is where the bot puts its workers, first free cell wins.
var placementOrder = []santorini.Coord{
	{X: 2, Y: 2}, {X: 1, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}, {X: 3, Y: 1},
	{X: 2, Y: 1}, {X: 1, Y: 2}, {X: 3, Y: 2}, {X: 2, Y: 3},
}

type botPolicy struct {
	id      string
	service MoveService
	timeout time.Duration
	rules   *SantoriniRules

	// thinking is set while a move is being computed; further wake ups are ignored.
	thinking bool
}

// WithBot seats a computer opponent as the second player. The session must run Santorini.
func WithBot(service MoveService, timeout time.Duration) Option {
	return func(s *Session) {
		s.bot = &botPolicy{
			id:      "bot:" + s.name,
			service: service,
			timeout: timeout,
		}
	}
}

// BotID returns the synthetic player id of the bot, or empty without one.
func (that *Session) BotID() string {
	if that.bot == nil {
		return ""
	}
	return that.bot.id
}

// wakeBot starts computing a move when it is the bot's turn. Must hold the lock.
func (that *Session) wakeBot() {
	bot := that.bot
	if bot == nil || bot.thinking || !that.running || that.rules.TurnPlayer() != bot.id {
		return
	}

	state, ok := bot.rules.State()
	if !ok {
		return
	}

	bot.thinking = true
	go that.think(that.round, state)
}

func (that *Session) think(round int, state santorini.State) {
	bot := that.bot

	var (
		action  string
		payload any
	)

	if state.Phase == santorini.PhasePlacement {
		action, payload = ActionPlaceWorker, botPlacement(state)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), bot.timeout)
		move, err := bot.service.NextMove(ctx, state)
		cancel()

		legal := santorini.Restore(state).LegalMoves(state.Turn)
		switch {
		case err != nil:
			that.logger.Warn("move service failed, using a legal move", "error", err)
			move = firstOr(legal, move)
		case !slices.Contains(legal, move):
			that.logger.Warn("move service returned an illegal move, using a legal move", "move", move)
			move = firstOr(legal, move)
		}

		action, payload = ActionMove, move
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to encode bot action", "error", err)
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	bot.thinking = false
	if that.closed || !that.running || round != that.round {
		that.logger.Debug("dropping stale bot action", "round", round)
		that.wakeBot()
		return
	}

	that.dispatch(Event{Name: action, Origin: bot.id, Payload: raw})
}

func botPlacement(state santorini.State) santorini.Coord {
	taken := make(map[santorini.Coord]bool)
	for _, workers := range state.Workers {
		for _, worker := range workers {
			taken[worker] = true
		}
	}

	for _, c := range placementOrder {
		if !taken[c] {
			return c
		}
	}

	for y := 0; y < santorini.Size; y++ {
		for x := 0; x < santorini.Size; x++ {
			if c := (santorini.Coord{X: x, Y: y}); !taken[c] {
				return c
			}
		}
	}

	return santorini.Unplaced
}

func firstOr(moves []santorini.Move, fallback santorini.Move) santorini.Move {
	if len(moves) == 0 {
		return fallback
	}
	return moves[0]
}

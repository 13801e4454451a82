package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

const (
	ActionStart = "start"
	ActionReset = "reset"

	UpdatePlayerJoin  = "player join"
	UpdatePlayerLeave = "player leave"
)

// Notifier delivers responses to connections. Rooms address a whole roster at once.
type Notifier interface {
	Send(connID string, response entity.Response)
	Broadcast(roomID string, response entity.Response)
	Join(roomID, connID string)
	Leave(roomID, connID string)
}

// Event is an inbound game action from one connection.
type Event struct {
	Name    string
	Origin  string
	Payload json.RawMessage
}

type rosterPayload struct {
	Player  string   `json:"player"`
	Players []string `json:"players"`
}

// Session is one named game: a roster, a rule engine and the round lifecycle around it.
// All methods are safe for concurrent use; actions are applied in lock acquisition order.
type Session struct {
	mu sync.Mutex

	name     string
	roomID   string
	rules    Rules
	roster   *entity.Roster
	handlers map[string]Handler
	notifier Notifier
	logger   *slog.Logger

	running bool
	active  bool
	closed  bool

	// round increments on every start, forced end and close; timers and bot
	// moves scheduled for an older round are dropped.
	round   int
	starter string
	next    string

	autoplay   bool
	resetDelay time.Duration
	resetTimer *time.Timer

	bot        *botPolicy
	onRoundEnd func(entity.RoundResult)
}

type Option func(*Session)

// WithAutoplay starts the round as soon as the roster is full and resets it delay after
// every round, the previous loser moving first.
func WithAutoplay(delay time.Duration) Option {
	return func(s *Session) {
		s.autoplay = true
		s.resetDelay = delay
	}
}

// WithRoundEndHook is called in its own goroutine for every finished round.
func WithRoundEndHook(hook func(entity.RoundResult)) Option {
	return func(s *Session) {
		s.onRoundEnd = hook
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func New(name string, rules Rules, notifier Notifier, opts ...Option) (*Session, error) {
	that := &Session{
		name:     name,
		roomID:   uuid.NewString(),
		rules:    rules,
		roster:   entity.NewRoster(),
		notifier: notifier,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(that)
	}

	if that.bot != nil {
		santoriniRules, ok := rules.(*SantoriniRules)
		if !ok {
			return nil, fmt.Errorf("%w: bot needs santorini rules, got %s", apperror.ErrUnknownKind, rules.Kind())
		}
		that.bot.rules = santoriniRules
	}

	that.logger = that.logger.With("component", "session", "game", name)

	that.handlers = map[string]Handler{
		ActionStart: {Fail: "start fail", Apply: that.handleStart},
		ActionReset: {Fail: "reset fail", Apply: that.handleReset},
	}
	for actionName, handler := range rules.Handlers() {
		that.handlers[actionName] = handler
	}

	return that, nil
}

func (that *Session) Name() string {
	return that.name
}

func (that *Session) RoomID() string {
	return that.roomID
}

func (that *Session) Kind() entity.GameKind {
	return that.rules.Kind()
}

// needed is the number of human players a round needs.
func (that *Session) needed() int {
	if that.bot != nil {
		return that.rules.Players() - 1
	}
	return that.rules.Players()
}

// participants lists roster ids in join order followed by the bot, if any.
func (that *Session) participants() []string {
	ids := that.roster.IDs()
	if that.bot != nil {
		ids = append(ids, that.bot.id)
	}
	return ids
}

// AddPlayer puts the player on the roster. With autoplay, a full roster starts the round.
func (that *Session) AddPlayer(player *entity.Player) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return fmt.Errorf("%w: %s", apperror.ErrGameNotFound, that.name)
	}

	if that.active {
		return fmt.Errorf("%w: %s", apperror.ErrGameInProgress, that.name)
	}

	if that.roster.Len() >= that.needed() {
		return fmt.Errorf("%w: %s", apperror.ErrGameFull, that.name)
	}

	if err := that.roster.Add(player); err != nil {
		return err
	}

	that.notifier.Join(that.roomID, player.ID)
	that.notifier.Broadcast(that.roomID, entity.Success(UpdatePlayerJoin, rosterPayload{
		Player:  player.Name,
		Players: that.roster.Names(),
	}))

	that.logger.Info("player joined", "player", player.ID, "players", that.roster.Len())

	if that.autoplay && that.roster.Len() == that.needed() {
		that.startRound("", nil)
	}

	return nil
}

// RemovePlayer takes the player off the roster and returns how many remain. Leaving a
// running round that can no longer continue ends it as a forfeit.
func (that *Session) RemovePlayer(id string) (int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.roster.Remove(id)
	if err != nil {
		return that.roster.Len(), err
	}

	that.notifier.Leave(that.roomID, id)
	that.logger.Info("player left", "player", id, "players", that.roster.Len())

	if that.running && that.roster.Len() < that.needed() {
		that.forceEnd(id)
		return that.roster.Len(), nil
	}

	if that.roster.Len() < that.needed() {
		that.active = false
	}

	if that.roster.Len() > 0 {
		that.notifier.Broadcast(that.roomID, entity.Success(UpdatePlayerLeave, rosterPayload{
			Player:  player.Name,
			Players: that.roster.Names(),
		}))
	}

	return that.roster.Len(), nil
}

func (that *Session) forceEnd(leaving string) {
	update := that.rules.Forfeit(leaving)

	that.running = false
	that.active = false
	that.round++

	that.notifier.Broadcast(that.roomID, entity.Success(update.Type, update.Payload))
	that.logger.Info("round forced to end", "player", leaving)

	winner, loser, _ := that.rules.Result()
	that.next = ""
	that.finish(entity.OutcomeForfeit, winner, loser)
}

// Dispatch applies an action. Unknown actions are ignored. Errors go to the origin only,
// successes to the whole roster.
func (that *Session) Dispatch(event Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.dispatch(event)
}

func (that *Session) dispatch(event Event) {
	handler, ok := that.handlers[event.Name]
	if !ok {
		that.logger.Debug("unhandled action", "action", event.Name, "origin", event.Origin)
		return
	}

	wasRunning := that.running

	update, err := handler.Apply(event.Origin, event.Payload)
	if err != nil {
		that.logger.Debug("action failed", "action", event.Name, "origin", event.Origin, "error", err)
		that.notifier.Send(event.Origin, entity.Failure(handler.Fail, err))
		return
	}

	that.publish(update)

	if wasRunning && !that.running {
		that.endRound()
	}
}

// publish broadcasts a successful update and lets the bot react to it.
func (that *Session) publish(update Update) {
	that.running = that.rules.Running()
	that.notifier.Broadcast(that.roomID, entity.Success(update.Type, update.Payload))
	that.wakeBot()
}

func (that *Session) handleStart(_ string, payload json.RawMessage) (Update, error) {
	return that.start("", payload)
}

func (that *Session) handleReset(_ string, _ json.RawMessage) (Update, error) {
	return that.reset()
}

func (that *Session) start(first string, payload json.RawMessage) (Update, error) {
	if that.running {
		return Update{}, fmt.Errorf("%w: %w", apperror.ErrStartFail, apperror.ErrAlreadyRunning)
	}

	if that.roster.Len() != that.needed() {
		return Update{}, fmt.Errorf("%w: need %d players, have %d", apperror.ErrStartFail, that.needed(), that.roster.Len())
	}

	update, err := that.rules.Start(that.participants(), first, payload)
	if err != nil {
		return Update{}, err
	}

	that.stopResetTimer()
	that.round++
	that.running = true
	that.active = true
	that.starter = that.rules.TurnPlayer()

	that.logger.Info("round started", "round", that.round, "first", that.starter)

	return update, nil
}

func (that *Session) reset() (Update, error) {
	if that.running {
		return Update{}, fmt.Errorf("%w: %w", apperror.ErrResetFail, apperror.ErrAlreadyRunning)
	}

	if that.roster.Len() != that.needed() {
		return Update{}, fmt.Errorf("%w: need %d players, have %d", apperror.ErrResetFail, that.needed(), that.roster.Len())
	}

	return that.start(that.next, nil)
}

// startRound starts a round outside of a player action.
func (that *Session) startRound(first string, payload json.RawMessage) {
	update, err := that.start(first, payload)
	if err != nil {
		that.logger.Warn("failed to start round", "error", err)
		return
	}

	that.publish(update)
}

// endRound handles a round that ended through play: a win or a tie.
func (that *Session) endRound() {
	winner, loser, tie := that.rules.Result()

	outcome := entity.OutcomeWin
	that.next = loser
	if tie {
		outcome = entity.OutcomeTie
		that.next = that.other(that.starter)
	}

	that.logger.Info("round ended", "outcome", outcome, "winner", winner)
	that.finish(outcome, winner, loser)
}

func (that *Session) other(id string) string {
	for _, participant := range that.participants() {
		if participant != id {
			return participant
		}
	}
	return ""
}

func (that *Session) finish(outcome entity.Outcome, winner, loser string) {
	if that.onRoundEnd != nil {
		result := entity.RoundResult{
			Game:       that.name,
			Kind:       that.rules.Kind(),
			Outcome:    outcome,
			Winner:     winner,
			Loser:      loser,
			Players:    that.participants(),
			FinishedAt: time.Now().UTC(),
		}
		if outcome == entity.OutcomeForfeit && loser != "" && !that.roster.Has(loser) {
			result.Players = append(result.Players, loser)
		}

		go that.onRoundEnd(result)
	}

	if that.autoplay {
		that.scheduleReset()
	}
}

func (that *Session) scheduleReset() {
	that.stopResetTimer()

	round := that.round
	that.resetTimer = time.AfterFunc(that.resetDelay, func() {
		that.autoReset(round)
	})
}

func (that *Session) autoReset(round int) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed || that.running || round != that.round {
		return
	}

	that.resetTimer = nil

	update, err := that.reset()
	if err != nil {
		that.logger.Info("autoplay reset skipped", "error", err)
		return
	}

	that.publish(update)
}

func (that *Session) stopResetTimer() {
	if that.resetTimer != nil {
		that.resetTimer.Stop()
		that.resetTimer = nil
	}
}

// Close ends the session for good: the pending reset is canceled, the roster is cleared
// and every handler is detached. The removed players are returned in join order.
func (that *Session) Close() []*entity.Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return nil
	}

	that.stopResetTimer()
	that.closed = true
	that.running = false
	that.active = false
	that.round++
	that.handlers = nil

	removed := that.roster.Clear()
	for _, player := range removed {
		that.notifier.Leave(that.roomID, player.ID)
	}

	that.logger.Info("session closed", "players", len(removed))

	return removed
}

func (that *Session) Info() entity.GameInfo {
	that.mu.Lock()
	defer that.mu.Unlock()

	return entity.GameInfo{
		Name:    that.name,
		Kind:    that.rules.Kind(),
		Players: that.roster.Names(),
		Running: that.running,
		Active:  that.active,
	}
}

func (that *Session) Running() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.running
}

func (that *Session) Active() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.active
}

func (that *Session) Len() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.roster.Len()
}

func (that *Session) Has(id string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.roster.Has(id)
}

// Snapshot returns the current board, or nil before the first round.
func (that *Session) Snapshot() any {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.rules.Snapshot()
}

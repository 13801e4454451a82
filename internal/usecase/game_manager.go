package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/metrics"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/session"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/tictactoe"
)

const (
	ActionJoinQueue  = "join queue"
	ActionLeaveQueue = "leave queue"
	ActionLeaveGame  = "leave game"
	ActionCreateGame = "create game"
	ActionJoinGame   = "join game"
	ActionPlayerInfo = "player info"
	ActionSetName    = "set name"
	ActionListGames  = "list games"

	UpdateGameFound = "game found"

	recordTimeout = 5 * time.Second
)

// Notifier is the outbound side of the transport.
type Notifier interface {
	session.Notifier
	// Disconnect closes the connection; the transport reports it back through OnDisconnect.
	Disconnect(connID string)
}

type playerRegistry interface {
	Add(connID, name string) (*entity.Player, error)
	Remove(connID string) (*entity.Player, bool)
	Get(connID string) (*entity.Player, bool)
	Rename(connID, name string) (*entity.Player, error)
}

type resultRecorder interface {
	Record(ctx context.Context, result entity.RoundResult) error
}

// Settings are the game tunables from the configuration.
type Settings struct {
	InactivityTimeout time.Duration
	ResetDelay        time.Duration
	WinSize           int
	QueueKind         entity.GameKind
	BotTimeout        time.Duration
}

type Option func(*GameManager)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *GameManager) {
		g.metrics = m
	}
}

func WithResultRecorder(recorder resultRecorder) Option {
	return func(g *GameManager) {
		g.results = recorder
	}
}

// WithMoveService enables santorini-bot games.
func WithMoveService(service session.MoveService) Option {
	return func(g *GameManager) {
		g.moves = service
	}
}

type managerHandler func(connID string, payload json.RawMessage) (any, error)

// GameManager owns the player registry, the game registry and the matchmaking queues.
// Its lock is always taken before any session lock, never after.
type GameManager struct {
	mu sync.Mutex

	logger     *slog.Logger
	baseLogger *slog.Logger
	players    playerRegistry
	notifier   Notifier
	settings   Settings

	games       map[string]*session.Session
	playerGames map[string]string
	queues      map[entity.GameKind]*MatchmakingQueue
	timers      map[string]*time.Timer
	handlers    map[string]managerHandler
	names       *nameGenerator

	metrics *metrics.Metrics
	results resultRecorder
	moves   session.MoveService
}

func NewGameManager(logger *slog.Logger, players playerRegistry, notifier Notifier, settings Settings, opts ...Option) *GameManager {
	if !settings.QueueKind.Valid() {
		settings.QueueKind = entity.KindTicTacToe
	}

	that := &GameManager{
		logger:     logger.With("component", "game-manager"),
		baseLogger: logger,
		players:    players,
		notifier:   notifier,
		settings:   settings,

		games:       make(map[string]*session.Session),
		playerGames: make(map[string]string),
		queues:      make(map[entity.GameKind]*MatchmakingQueue),
		timers:      make(map[string]*time.Timer),
		names:       newNameGenerator(time.Now().UnixNano()),
	}

	for _, opt := range opts {
		opt(that)
	}

	that.handlers = map[string]managerHandler{
		ActionJoinQueue:  typed(that.joinQueue),
		ActionLeaveQueue: that.leaveQueue,
		ActionLeaveGame:  that.leaveGame,
		ActionCreateGame: typed(that.createGame),
		ActionJoinGame:   typed(that.joinGame),
		ActionPlayerInfo: that.playerInfo,
		ActionSetName:    typed(that.setName),
		ActionListGames: func(string, json.RawMessage) (any, error) {
			return that.listGames(), nil
		},
	}

	return that
}

func typed[T any](handle func(connID string, payload T) (any, error)) managerHandler {
	return func(connID string, raw json.RawMessage) (any, error) {
		payload, err := entity.Decode[T](raw)
		if err != nil {
			return nil, err
		}

		return handle(connID, payload)
	}
}

type queuePayload struct {
	Kind entity.GameKind `json:"kind" validate:"omitempty,oneof=tictactoe santorini santorini-bot"`
}

type joinPayload struct {
	Name string `json:"name" validate:"required,max=32"`
}

type namePayload struct {
	Name string `json:"name" validate:"required,max=24"`
}

// OnConnect registers a player with a generated name and starts its inactivity timer.
func (that *GameManager) OnConnect(connID string) (*entity.Player, error) {
	log := that.logger.With("method", "OnConnect", "conn", connID)

	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.players.Add(connID, that.names.next())
	if err != nil {
		return nil, fmt.Errorf("failed to add player: %w", err)
	}

	if that.settings.InactivityTimeout > 0 {
		that.timers[connID] = time.AfterFunc(that.settings.InactivityTimeout, func() {
			that.expire(connID)
		})
	}

	that.metrics.Connected()
	log.Info("player connected", "name", player.Name)

	return player, nil
}

// Touch restarts the inactivity countdown of connID.
func (that *GameManager) Touch(connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if timer, ok := that.timers[connID]; ok {
		timer.Reset(that.settings.InactivityTimeout)
	}
}

func (that *GameManager) expire(connID string) {
	that.logger.Info("player inactive, disconnecting", "conn", connID)

	that.OnDisconnect(connID)
	that.notifier.Disconnect(connID)
}

// OnDisconnect drops the player from queues and its game, then forgets it. Unknown ids are ignored.
func (that *GameManager) OnDisconnect(connID string) {
	log := that.logger.With("method", "OnDisconnect", "conn", connID)

	that.mu.Lock()
	defer that.mu.Unlock()

	if timer, ok := that.timers[connID]; ok {
		timer.Stop()
		delete(that.timers, connID)
	}

	that.dequeue(connID)

	if name, ok := that.playerGames[connID]; ok {
		that.leave(connID, name)
	}

	if _, ok := that.players.Remove(connID); !ok {
		return
	}

	that.metrics.Disconnected()
	log.Info("player disconnected")
}

// HandleManagerAction runs a manager action and returns the reply for the sender.
func (that *GameManager) HandleManagerAction(connID string, action entity.Action) entity.Response {
	that.Touch(connID)

	handler, ok := that.handlers[action.Name]
	if !ok {
		return entity.Failure(action.Name+" fail", fmt.Errorf("%w: %q", apperror.ErrUnknownAction, action.Name))
	}

	that.mu.Lock()
	payload, err := handler(connID, action.Payload)
	that.mu.Unlock()

	if err != nil {
		that.logger.Debug("manager action failed", "conn", connID, "action", action.Name, "error", err)
		return entity.Failure(action.Name+" fail", err)
	}

	return entity.Success(action.Name, payload)
}

// HandleGameAction forwards the action to the sender's current game.
func (that *GameManager) HandleGameAction(connID string, action entity.Action) {
	that.Touch(connID)

	that.mu.Lock()
	game, ok := that.games[that.playerGames[connID]]
	that.mu.Unlock()

	if !ok {
		that.notifier.Send(connID, entity.Failure(action.Name+" fail", apperror.ErrNotInGame))
		return
	}

	game.Dispatch(session.Event{Name: action.Name, Origin: connID, Payload: action.Payload})
}

func (that *GameManager) CreateGame(connID string, options entity.CreateOptions) (entity.GameInfo, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	info, err := that.createGame(connID, options)
	if err != nil {
		return entity.GameInfo{}, err
	}

	return info.(entity.GameInfo), nil
}

func (that *GameManager) JoinGame(connID, name string) (entity.GameInfo, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	info, err := that.joinGame(connID, joinPayload{Name: name})
	if err != nil {
		return entity.GameInfo{}, err
	}

	return info.(entity.GameInfo), nil
}

func (that *GameManager) LeaveGame(connID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, err := that.leaveGame(connID, nil)
	return err
}

// Enqueue puts the player in the queue of kind and tries to match it right away.
func (that *GameManager) Enqueue(connID string, kind entity.GameKind) (entity.PlayerInfo, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	info, err := that.joinQueue(connID, queuePayload{Kind: kind})
	if err != nil {
		return entity.PlayerInfo{}, err
	}

	return info.(entity.PlayerInfo), nil
}

func (that *GameManager) PlayerInfo(connID string) (entity.PlayerInfo, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.info(connID)
}

func (that *GameManager) ListGames() []entity.GameInfo {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.listGames()
}

func (that *GameManager) createGame(connID string, options entity.CreateOptions) (any, error) {
	log := that.logger.With("method", "createGame", "conn", connID)

	player, err := that.player(connID)
	if err != nil {
		return nil, err
	}

	if name, ok := that.playerGames[connID]; ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrAlreadyInGame, name)
	}

	if _, ok := that.games[options.Name]; ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrNameTaken, options.Name)
	}

	if options.Kind == "" {
		options.Kind = entity.KindTicTacToe
	}

	game, err := that.newSession(options.Name, options, options.Autoplay)
	if err != nil {
		return nil, err
	}

	that.register(game)

	if err = that.join(game, player); err != nil {
		that.closeGame(game.Name())
		return nil, err
	}

	log.Info("game created", "game", options.Name, "kind", options.Kind)

	return game.Info(), nil
}

func (that *GameManager) joinGame(connID string, payload joinPayload) (any, error) {
	player, err := that.player(connID)
	if err != nil {
		return nil, err
	}

	game, ok := that.games[payload.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameNotFound, payload.Name)
	}

	if name, ok := that.playerGames[connID]; ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrAlreadyInGame, name)
	}

	if game.Active() {
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameInProgress, payload.Name)
	}

	if err = that.join(game, player); err != nil {
		return nil, err
	}

	return game.Info(), nil
}

func (that *GameManager) leaveGame(connID string, _ json.RawMessage) (any, error) {
	if _, err := that.player(connID); err != nil {
		return nil, err
	}

	name, ok := that.playerGames[connID]
	if !ok {
		return nil, apperror.ErrNotInGame
	}

	that.leave(connID, name)

	return that.info(connID)
}

func (that *GameManager) joinQueue(connID string, payload queuePayload) (any, error) {
	if _, err := that.player(connID); err != nil {
		return nil, err
	}

	if name, ok := that.playerGames[connID]; ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrAlreadyInGame, name)
	}

	if that.queued(connID) {
		return nil, apperror.ErrAlreadyQueued
	}

	kind := payload.Kind
	if kind == "" {
		kind = that.settings.QueueKind
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", apperror.ErrUnknownKind, kind)
	}

	queue := that.queue(kind)
	queue.Push(connID)
	that.metrics.QueueLength(kind, queue.Len())

	that.match(kind)

	return that.info(connID)
}

func (that *GameManager) leaveQueue(connID string, _ json.RawMessage) (any, error) {
	if _, err := that.player(connID); err != nil {
		return nil, err
	}

	if !that.dequeue(connID) {
		return nil, apperror.ErrNotQueued
	}

	return that.info(connID)
}

func (that *GameManager) playerInfo(connID string, _ json.RawMessage) (any, error) {
	return that.info(connID)
}

func (that *GameManager) setName(connID string, payload namePayload) (any, error) {
	if _, ok := that.playerGames[connID]; ok {
		return nil, apperror.ErrNameInGame
	}

	if _, err := that.players.Rename(connID, strings.TrimSpace(payload.Name)); err != nil {
		return nil, err
	}

	return that.info(connID)
}

func (that *GameManager) listGames() []entity.GameInfo {
	games := make([]entity.GameInfo, 0, len(that.games))
	for _, game := range that.games {
		games = append(games, game.Info())
	}

	slices.SortFunc(games, func(a, b entity.GameInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	return games
}

func (that *GameManager) player(connID string) (*entity.Player, error) {
	player, ok := that.players.Get(connID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrPlayerNotFound, connID)
	}

	return player, nil
}

func (that *GameManager) info(connID string) (entity.PlayerInfo, error) {
	player, err := that.player(connID)
	if err != nil {
		return entity.PlayerInfo{}, err
	}

	name, inGame := that.playerGames[connID]

	return entity.PlayerInfo{
		Player: player,
		InGame: inGame,
		Game:   name,
		Queued: that.queued(connID),
	}, nil
}

// match pairs players at the head of the kind's queue until too few remain.
func (that *GameManager) match(kind entity.GameKind) {
	log := that.logger.With("method", "match", "kind", kind)

	queue := that.queue(kind)
	needed := playersFor(kind)

	for {
		matched := make([]*entity.Player, 0, needed)
		for len(matched) < needed {
			id, ok := queue.Pop()
			if !ok {
				break
			}

			player, ok := that.players.Get(id)
			if !ok {
				log.Info("dropping disconnected player from queue", "conn", id)
				continue
			}

			matched = append(matched, player)
		}

		if len(matched) < needed {
			for i := len(matched) - 1; i >= 0; i-- {
				queue.PushFront(matched[i].ID)
			}
			that.metrics.QueueLength(kind, queue.Len())
			return
		}

		that.metrics.QueueLength(kind, queue.Len())
		that.startMatch(kind, matched)
	}
}

func (that *GameManager) startMatch(kind entity.GameKind, matched []*entity.Player) {
	log := that.logger.With("method", "startMatch", "kind", kind)

	name := that.matchName()
	game, err := that.newSession(name, entity.CreateOptions{Name: name, Kind: kind}, true)
	if err != nil {
		log.Error("failed to create match", "error", err)
		return
	}

	that.register(game)

	for _, player := range matched {
		that.notifier.Send(player.ID, entity.Success(UpdateGameFound, entity.GameInfo{Name: name, Kind: kind}))

		if err = that.join(game, player); err != nil {
			log.Error("failed to seat matched player", "conn", player.ID, "error", err)
		}
	}

	log.Info("match created", "game", name, "players", len(matched))
}

func (that *GameManager) matchName() string {
	for {
		name := "match-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
		if _, taken := that.games[name]; !taken {
			return name
		}
	}
}

func playersFor(kind entity.GameKind) int {
	if kind == entity.KindSantoriniBot {
		return 1
	}
	return 2
}

func (that *GameManager) newSession(name string, options entity.CreateOptions, autoplay bool) (*session.Session, error) {
	opts := []session.Option{
		session.WithLogger(that.baseLogger),
		session.WithRoundEndHook(that.recordResult),
	}
	if autoplay {
		opts = append(opts, session.WithAutoplay(that.settings.ResetDelay))
	}

	var rules session.Rules
	switch options.Kind {
	case entity.KindTicTacToe:
		winSize := options.WinSize
		if winSize == 0 {
			winSize = that.settings.WinSize
		}
		rules = session.NewTicTacToeRules(tictactoe.Options{
			Width:   options.Width,
			Height:  options.Height,
			WinSize: winSize,
		})
	case entity.KindSantorini:
		rules = session.NewSantoriniRules(options.Kind)
	case entity.KindSantoriniBot:
		if that.moves == nil {
			return nil, fmt.Errorf("%w: no move service for %s", apperror.ErrUnknownKind, options.Kind)
		}
		rules = session.NewSantoriniRules(options.Kind)
		opts = append(opts, session.WithBot(that.moves, that.settings.BotTimeout))
	default:
		return nil, fmt.Errorf("%w: %s", apperror.ErrUnknownKind, options.Kind)
	}

	game, err := session.New(name, rules, that.notifier, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return game, nil
}

func (that *GameManager) register(game *session.Session) {
	that.games[game.Name()] = game
	that.metrics.SessionOpened()
}

// join seats the player and records the player → game index.
func (that *GameManager) join(game *session.Session, player *entity.Player) error {
	if err := game.AddPlayer(player); err != nil {
		return err
	}

	that.dequeue(player.ID)
	that.playerGames[player.ID] = game.Name()

	return nil
}

// leave takes the player out of the named game and closes the game once it is empty.
func (that *GameManager) leave(connID, name string) {
	delete(that.playerGames, connID)

	game, ok := that.games[name]
	if !ok {
		return
	}

	remaining, err := game.RemovePlayer(connID)
	if err != nil && !errors.Is(err, apperror.ErrPlayerNotFound) {
		that.logger.Error("failed to remove player", "conn", connID, "game", name, "error", err)
	}

	if remaining == 0 {
		that.closeGame(name)
	}
}

func (that *GameManager) closeGame(name string) {
	game, ok := that.games[name]
	if !ok {
		return
	}

	for _, player := range game.Close() {
		delete(that.playerGames, player.ID)
	}

	delete(that.games, name)
	that.metrics.SessionClosed()

	that.logger.Info("game closed", "game", name)
}

func (that *GameManager) queue(kind entity.GameKind) *MatchmakingQueue {
	queue, ok := that.queues[kind]
	if !ok {
		queue = NewMatchmakingQueue()
		that.queues[kind] = queue
	}
	return queue
}

func (that *GameManager) queued(connID string) bool {
	for _, queue := range that.queues {
		if queue.Contains(connID) {
			return true
		}
	}
	return false
}

// dequeue removes connID from every queue and reports whether it was waiting anywhere.
func (that *GameManager) dequeue(connID string) bool {
	removed := false
	for kind, queue := range that.queues {
		if queue.Remove(connID) {
			removed = true
			that.metrics.QueueLength(kind, queue.Len())
		}
	}
	return removed
}

// recordResult runs on the session's round end goroutine and never takes the manager lock.
func (that *GameManager) recordResult(result entity.RoundResult) {
	that.metrics.RoundFinished(result.Kind, result.Outcome)
	that.logger.Info("round finished", "game", result.Game, "kind", result.Kind, "outcome", result.Outcome, "winner", result.Winner)

	if that.results == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := that.results.Record(ctx, result); err != nil {
		that.logger.Error("failed to record round result", "game", result.Game, "error", err)
	}
}

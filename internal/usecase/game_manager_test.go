package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/repository"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/santorini"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/session"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/tictactoe"
)

type fakeNotifier struct {
	mu           sync.Mutex
	rooms        map[string]map[string]bool
	received     map[string][]entity.Response
	disconnected []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		rooms:    make(map[string]map[string]bool),
		received: make(map[string][]entity.Response),
	}
}

func (that *fakeNotifier) Send(connID string, response entity.Response) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.received[connID] = append(that.received[connID], response)
}

func (that *fakeNotifier) Broadcast(roomID string, response entity.Response) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for connID := range that.rooms[roomID] {
		that.received[connID] = append(that.received[connID], response)
	}
}

func (that *fakeNotifier) Join(roomID, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.rooms[roomID] == nil {
		that.rooms[roomID] = make(map[string]bool)
	}
	that.rooms[roomID][connID] = true
}

func (that *fakeNotifier) Leave(roomID, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms[roomID], connID)
}

func (that *fakeNotifier) Disconnect(connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.disconnected = append(that.disconnected, connID)
}

func (that *fakeNotifier) to(connID string) []entity.Response {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]entity.Response(nil), that.received[connID]...)
}

func (that *fakeNotifier) last(connID string) entity.Response {
	responses := that.to(connID)
	if len(responses) == 0 {
		return entity.Response{}
	}
	return responses[len(responses)-1]
}

func (that *fakeNotifier) types(connID string) []string {
	var types []string
	for _, response := range that.to(connID) {
		types = append(types, response.Type)
	}
	return types
}

type mockRecorder struct {
	mock.Mock
}

func (that *mockRecorder) Record(ctx context.Context, result entity.RoundResult) error {
	return that.Called(ctx, result).Error(0)
}

type firstMove struct{}

func (firstMove) NextMove(_ context.Context, state santorini.State) (santorini.Move, error) {
	return santorini.Restore(state).LegalMoves(state.Turn)[0], nil
}

var testSettings = Settings{
	ResetDelay: time.Hour,
	WinSize:    3,
	QueueKind:  entity.KindTicTacToe,
	BotTimeout: time.Second,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newManager(t *testing.T, settings Settings, opts ...Option) (*GameManager, *fakeNotifier) {
	t.Helper()

	notifier := newFakeNotifier()
	return NewGameManager(testLogger(), repository.NewPlayerRegistry(), notifier, settings, opts...), notifier
}

func connect(t *testing.T, manager *GameManager, ids ...string) {
	t.Helper()

	for _, id := range ids {
		_, err := manager.OnConnect(id)
		require.NoError(t, err)
	}
}

func mark(x, y int) json.RawMessage {
	raw, _ := json.Marshal(map[string]int{"x": x, "y": y})
	return raw
}

func TestGameManager_OnConnect(t *testing.T) {
	t.Run("Registers a player with a generated name", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)

		player, err := manager.OnConnect("conn-1")

		require.NoError(t, err)
		assert.Equal(t, "conn-1", player.ID)
		assert.NotEmpty(t, player.Name)

		info, err := manager.PlayerInfo("conn-1")
		require.NoError(t, err)
		assert.False(t, info.InGame)
		assert.False(t, info.Queued)
	})

	t.Run("Fails for a connection id that is already live", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "conn-1")

		_, err := manager.OnConnect("conn-1")

		require.ErrorIs(t, err, apperror.ErrDuplicatePlayer)
	})
}

func TestGameManager_CreateGame(t *testing.T) {
	t.Run("Creates a game with the requester as host", func(t *testing.T) {
		// Given: a connected player
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		// When: the player creates a game
		info, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})

		// Then: the game is registered, not running and holds the host
		require.NoError(t, err)
		assert.Equal(t, entity.KindTicTacToe, info.Kind)
		assert.Len(t, info.Players, 1)
		assert.False(t, info.Running)

		player, err := manager.PlayerInfo("a")
		require.NoError(t, err)
		assert.True(t, player.InGame)
		assert.Equal(t, "lobby", player.Game)
	})

	t.Run("Fails when the requester is already in a game", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")
		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "one"})
		require.NoError(t, err)

		_, err = manager.CreateGame("a", entity.CreateOptions{Name: "two"})

		require.ErrorIs(t, err, apperror.ErrAlreadyInGame)
	})

	t.Run("Fails when the name is taken", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b")
		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
		require.NoError(t, err)

		_, err = manager.CreateGame("b", entity.CreateOptions{Name: "lobby"})

		require.ErrorIs(t, err, apperror.ErrNameTaken)
	})

	t.Run("Bot games need a move service", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "bot", Kind: entity.KindSantoriniBot})

		require.ErrorIs(t, err, apperror.ErrUnknownKind)
		assert.Empty(t, manager.ListGames())
	})
}

func TestGameManager_JoinGame(t *testing.T) {
	t.Run("Fails for an unknown game", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		_, err := manager.JoinGame("a", "nowhere")

		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Fails when the requester is in another game", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b")
		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "one"})
		require.NoError(t, err)
		_, err = manager.CreateGame("b", entity.CreateOptions{Name: "two"})
		require.NoError(t, err)

		_, err = manager.JoinGame("b", "one")

		require.ErrorIs(t, err, apperror.ErrAlreadyInGame)
	})

	t.Run("Fails while the game is active", func(t *testing.T) {
		// Given: a running game between a and b
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b", "c")
		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
		require.NoError(t, err)
		_, err = manager.JoinGame("b", "lobby")
		require.NoError(t, err)
		manager.HandleGameAction("a", entity.Action{Name: session.ActionStart})

		// When: c tries to join
		_, err = manager.JoinGame("c", "lobby")

		// Then: the game is in progress
		require.ErrorIs(t, err, apperror.ErrGameInProgress)
	})
}

func TestGameManager_Play(t *testing.T) {
	// Given: a creates and b joins a 3x3 game, and a starts it
	manager, notifier := newManager(t, testSettings)
	connect(t, manager, "a", "b")
	_, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
	require.NoError(t, err)
	_, err = manager.JoinGame("b", "lobby")
	require.NoError(t, err)
	manager.HandleGameAction("a", entity.Action{Name: session.ActionStart})

	// When: they alternate marks at (1,1), (0,1), (0,2), (1,2)
	manager.HandleGameAction("a", entity.Action{Name: session.ActionMark, Payload: mark(1, 1)})
	manager.HandleGameAction("b", entity.Action{Name: session.ActionMark, Payload: mark(0, 1)})
	manager.HandleGameAction("a", entity.Action{Name: session.ActionMark, Payload: mark(0, 2)})
	manager.HandleGameAction("b", entity.Action{Name: session.ActionMark, Payload: mark(1, 2)})

	// Then: both see the documented board
	expected := []tictactoe.Mark{"*", "*", "*", "x", "o", "*", "o", "x", "*"}
	for _, id := range []string{"a", "b"} {
		state, ok := notifier.last(id).Payload.(tictactoe.State)
		require.True(t, ok)
		assert.Equal(t, expected, state.Board)
	}
}

func TestGameManager_HandleGameAction(t *testing.T) {
	t.Run("Players without a game get an error", func(t *testing.T) {
		manager, notifier := newManager(t, testSettings)
		connect(t, manager, "a")

		manager.HandleGameAction("a", entity.Action{Name: session.ActionMark, Payload: mark(0, 0)})

		response := notifier.last("a")
		assert.True(t, response.Error)
		assert.Equal(t, "mark fail", response.Type)
		assert.Equal(t, apperror.ErrNotInGame.Error(), response.Message)
	})
}

func TestGameManager_LeaveGame(t *testing.T) {
	t.Run("Fails outside a game", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		err := manager.LeaveGame("a")

		require.ErrorIs(t, err, apperror.ErrNotInGame)
	})

	t.Run("The last player leaving closes the game", func(t *testing.T) {
		// Given: a game with two players
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b")
		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
		require.NoError(t, err)
		_, err = manager.JoinGame("b", "lobby")
		require.NoError(t, err)

		// When: both leave
		require.NoError(t, manager.LeaveGame("a"))
		require.Len(t, manager.ListGames(), 1)
		require.NoError(t, manager.LeaveGame("b"))

		// Then: the game is gone and the name is free again
		assert.Empty(t, manager.ListGames())
		_, err = manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
		assert.NoError(t, err)
	})
}

func TestGameManager_OnDisconnect(t *testing.T) {
	t.Run("A disconnect mid-round ends it for the other player", func(t *testing.T) {
		// Given: a running game between a and b
		manager, notifier := newManager(t, testSettings)
		connect(t, manager, "a", "b")
		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
		require.NoError(t, err)
		_, err = manager.JoinGame("b", "lobby")
		require.NoError(t, err)
		manager.HandleGameAction("a", entity.Action{Name: session.ActionStart})

		// When: b's connection drops
		manager.OnDisconnect("b")

		// Then: a sees the disconnect and b is forgotten
		assert.Equal(t, tictactoe.UpdateDisconnect, notifier.last("a").Type)
		_, err = manager.PlayerInfo("b")
		require.ErrorIs(t, err, apperror.ErrPlayerNotFound)

		games := manager.ListGames()
		require.Len(t, games, 1)
		assert.False(t, games[0].Running)
		assert.False(t, games[0].Active)
	})

	t.Run("Removes the player from the queue", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")
		_, err := manager.Enqueue("a", entity.KindTicTacToe)
		require.NoError(t, err)

		manager.OnDisconnect("a")

		assert.Equal(t, 0, manager.queue(entity.KindTicTacToe).Len())
	})

	t.Run("Unknown connections are ignored", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)

		assert.NotPanics(t, func() { manager.OnDisconnect("ghost") })
	})
}

func TestGameManager_Enqueue(t *testing.T) {
	t.Run("Two queued players are matched into a running game", func(t *testing.T) {
		// Given: two connected players
		manager, notifier := newManager(t, testSettings)
		connect(t, manager, "a", "b")

		// When: both join the queue
		info, err := manager.Enqueue("a", "")
		require.NoError(t, err)
		assert.True(t, info.Queued)

		info, err = manager.Enqueue("b", "")
		require.NoError(t, err)

		// Then: they share a game that started on its own, a moving first
		assert.True(t, info.InGame)
		assert.False(t, info.Queued)

		games := manager.ListGames()
		require.Len(t, games, 1)
		assert.True(t, games[0].Running)

		assert.Contains(t, notifier.types("a"), UpdateGameFound)
		state, ok := notifier.last("a").Payload.(tictactoe.State)
		require.True(t, ok)
		assert.Equal(t, tictactoe.MarkA, state.Marks["a"])
	})

	t.Run("Disconnected entries are dropped and the head is kept", func(t *testing.T) {
		// Given: a stale entry at the head of the queue
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "b", "c")
		manager.queue(entity.KindTicTacToe).Push("ghost")

		// When: b joins the queue
		_, err := manager.Enqueue("b", entity.KindTicTacToe)
		require.NoError(t, err)

		// Then: the ghost is gone and b waits at the front
		queue := manager.queue(entity.KindTicTacToe)
		require.Equal(t, 1, queue.Len())
		assert.True(t, queue.Contains("b"))

		// When: c joins
		_, err = manager.Enqueue("c", entity.KindTicTacToe)
		require.NoError(t, err)

		// Then: b and c are matched in queue order
		games := manager.ListGames()
		require.Len(t, games, 1)
		bob, _ := manager.players.Get("b")
		carol, _ := manager.players.Get("c")
		assert.Equal(t, []string{bob.Name, carol.Name}, games[0].Players)
	})

	t.Run("Queues are kept per kind", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b")

		_, err := manager.Enqueue("a", entity.KindTicTacToe)
		require.NoError(t, err)
		_, err = manager.Enqueue("b", entity.KindSantorini)
		require.NoError(t, err)

		assert.Empty(t, manager.ListGames())
	})

	t.Run("A bot match needs a single player", func(t *testing.T) {
		manager, _ := newManager(t, testSettings, WithMoveService(firstMove{}))
		connect(t, manager, "a")

		info, err := manager.Enqueue("a", entity.KindSantoriniBot)

		require.NoError(t, err)
		assert.True(t, info.InGame)
		games := manager.ListGames()
		require.Len(t, games, 1)
		assert.Equal(t, entity.KindSantoriniBot, games[0].Kind)
		assert.True(t, games[0].Running)
	})

	t.Run("Rejects players already in a game or queue", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b")
		_, err := manager.Enqueue("a", "")
		require.NoError(t, err)
		_, err = manager.CreateGame("b", entity.CreateOptions{Name: "lobby"})
		require.NoError(t, err)

		_, err = manager.Enqueue("a", "")
		require.ErrorIs(t, err, apperror.ErrAlreadyQueued)

		_, err = manager.Enqueue("b", "")
		require.ErrorIs(t, err, apperror.ErrAlreadyInGame)
	})
}

func TestGameManager_HandleManagerAction(t *testing.T) {
	t.Run("Replies with the action name", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		response := manager.HandleManagerAction("a", entity.Action{Name: ActionCreateGame, Payload: json.RawMessage(`{"name":"lobby"}`)})

		require.False(t, response.Error, response.Message)
		assert.Equal(t, ActionCreateGame, response.Type)
		assert.Equal(t, "lobby", response.Payload.(entity.GameInfo).Name)
	})

	t.Run("Unknown actions fail", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		response := manager.HandleManagerAction("a", entity.Action{Name: "fly"})

		assert.True(t, response.Error)
		assert.Equal(t, "fly fail", response.Type)
	})

	t.Run("Invalid payloads fail", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		response := manager.HandleManagerAction("a", entity.Action{Name: ActionCreateGame, Payload: json.RawMessage(`{"kind":"chess"}`)})

		assert.True(t, response.Error)
		assert.Equal(t, "create game fail", response.Type)
	})

	t.Run("Unknown players get a does not exist reply", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)

		response := manager.HandleManagerAction("ghost", entity.Action{Name: ActionPlayerInfo})

		assert.True(t, response.Error)
		assert.Contains(t, response.Message, "does not exist")
	})

	t.Run("Set name is refused during a game", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		response := manager.HandleManagerAction("a", entity.Action{Name: ActionSetName, Payload: json.RawMessage(`{"name":"  Zed "}`)})
		require.False(t, response.Error)
		assert.Equal(t, "Zed", response.Payload.(entity.PlayerInfo).Player.Name)

		_, err := manager.CreateGame("a", entity.CreateOptions{Name: "lobby"})
		require.NoError(t, err)

		response = manager.HandleManagerAction("a", entity.Action{Name: ActionSetName, Payload: json.RawMessage(`{"name":"Amy"}`)})
		assert.True(t, response.Error)
		assert.Equal(t, apperror.ErrNameInGame.Error(), response.Message)
	})

	t.Run("Lists games by name", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a", "b")
		_, err := manager.CreateGame("b", entity.CreateOptions{Name: "zeta"})
		require.NoError(t, err)
		_, err = manager.CreateGame("a", entity.CreateOptions{Name: "alpha", Kind: entity.KindSantorini})
		require.NoError(t, err)

		response := manager.HandleManagerAction("a", entity.Action{Name: ActionListGames})

		games := response.Payload.([]entity.GameInfo)
		require.Len(t, games, 2)
		assert.Equal(t, "alpha", games[0].Name)
		assert.Equal(t, entity.KindSantorini, games[0].Kind)
	})

	t.Run("Leave queue", func(t *testing.T) {
		manager, _ := newManager(t, testSettings)
		connect(t, manager, "a")

		response := manager.HandleManagerAction("a", entity.Action{Name: ActionLeaveQueue})
		assert.True(t, response.Error)

		manager.HandleManagerAction("a", entity.Action{Name: ActionJoinQueue})
		response = manager.HandleManagerAction("a", entity.Action{Name: ActionLeaveQueue})
		require.False(t, response.Error)
		assert.False(t, response.Payload.(entity.PlayerInfo).Queued)
	})
}

func TestGameManager_Inactivity(t *testing.T) {
	// Given: a short inactivity timeout
	settings := testSettings
	settings.InactivityTimeout = 30 * time.Millisecond
	manager, notifier := newManager(t, settings)
	connect(t, manager, "a")

	// When: the player stays silent
	// Then: it is disconnected and forgotten
	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.disconnected) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := manager.PlayerInfo("a")
	require.ErrorIs(t, err, apperror.ErrPlayerNotFound)
}

func TestGameManager_RecordsResults(t *testing.T) {
	// Given: a manager with a result recorder and a 1x1 game
	recorded := make(chan entity.RoundResult, 1)
	recorder := &mockRecorder{}
	recorder.On("Record", mock.Anything, mock.AnythingOfType("entity.RoundResult")).
		Run(func(args mock.Arguments) {
			recorded <- args.Get(1).(entity.RoundResult)
		}).
		Return(nil).
		Once()

	manager, _ := newManager(t, testSettings, WithResultRecorder(recorder))
	connect(t, manager, "a", "b")
	_, err := manager.CreateGame("a", entity.CreateOptions{Name: "tiny", Width: 1, Height: 1, WinSize: 1})
	require.NoError(t, err)
	_, err = manager.JoinGame("b", "tiny")
	require.NoError(t, err)

	// When: a wins with the only mark
	manager.HandleGameAction("a", entity.Action{Name: session.ActionStart})
	manager.HandleGameAction("a", entity.Action{Name: session.ActionMark, Payload: mark(0, 0)})

	// Then: the result reaches the recorder
	select {
	case result := <-recorded:
		assert.Equal(t, "tiny", result.Game)
		assert.Equal(t, entity.OutcomeWin, result.Outcome)
		assert.Equal(t, "a", result.Winner)
		assert.Equal(t, []string{"a", "b"}, result.Players)
	case <-time.After(time.Second):
		t.Fatal("result was not recorded")
	}
	recorder.AssertExpectations(t)
}

// TestGameManager_RosterInvariant runs random manager operations and checks that no player
// is ever on two rosters and that the player index agrees with the rosters.
func TestGameManager_RosterInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	manager, _ := newManager(t, testSettings)

	ids := []string{"p0", "p1", "p2", "p3", "p4", "p5"}
	names := []string{"g0", "g1", "g2"}
	connected := make(map[string]bool)

	for step := 0; step < 2000; step++ {
		id := ids[rng.Intn(len(ids))]
		name := names[rng.Intn(len(names))]

		switch op := rng.Intn(7); {
		case op == 0 && !connected[id]:
			connect(t, manager, id)
			connected[id] = true
		case op == 1 && connected[id]:
			manager.OnDisconnect(id)
			connected[id] = false
		case op == 2:
			_, _ = manager.CreateGame(id, entity.CreateOptions{Name: name})
		case op == 3:
			_, _ = manager.JoinGame(id, name)
		case op == 4:
			_ = manager.LeaveGame(id)
		case op == 5:
			_, _ = manager.Enqueue(id, entity.KindTicTacToe)
		default:
			manager.HandleGameAction(id, entity.Action{Name: session.ActionStart})
		}

		assertRosterInvariant(t, manager, ids, step)
	}
}

func assertRosterInvariant(t *testing.T, manager *GameManager, ids []string, step int) {
	t.Helper()

	manager.mu.Lock()
	defer manager.mu.Unlock()

	for _, id := range ids {
		var member []string
		for name, game := range manager.games {
			if game.Has(id) {
				member = append(member, name)
			}
		}

		require.LessOrEqual(t, len(member), 1, fmt.Sprintf("step %d: %s is on %v", step, id, member))

		name, indexed := manager.playerGames[id]
		if len(member) == 1 {
			require.True(t, indexed, "step %d: %s missing from index", step, id)
			require.Equal(t, member[0], name, "step %d", step)
		} else {
			require.False(t, indexed, "step %d: %s indexed to %s but on no roster", step, id, name)
		}
	}

	for name, game := range manager.games {
		require.Positive(t, game.Len(), "step %d: empty game %s kept", step, name)
	}
}

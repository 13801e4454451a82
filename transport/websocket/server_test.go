package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/repository"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/usecase"
)

type inbound struct {
	Kind     string `json:"kind"`
	ID       int    `json:"id"`
	Response struct {
		Error   bool            `json:"error"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Message string          `json:"message"`
	} `json:"response"`
}

func newTestServer(t *testing.T) (*httptest.Server, *usecase.GameManager, *Hub) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	manager := usecase.NewGameManager(logger, repository.NewPlayerRegistry(), hub, usecase.Settings{
		ResetDelay: time.Hour,
		WinSize:    3,
		QueueKind:  entity.KindTicTacToe,
	})

	srv := httptest.NewServer(New(logger, hub, manager).Handler())
	t.Cleanup(srv.Close)

	return srv, manager, hub
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, entity.Player) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	connected := readUntil(t, conn, func(frame inbound) bool { return frame.Response.Type == UpdateConnected })

	var player entity.Player
	require.NoError(t, json.Unmarshal(connected.Response.Payload, &player))

	return conn, player
}

func send(t *testing.T, conn *websocket.Conn, message Message) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(message))
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(frame inbound) bool) inbound {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame inbound
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func TestServer_Connect(t *testing.T) {
	t.Run("Greets a new connection with its generated player", func(t *testing.T) {
		srv, manager, hub := newTestServer(t)

		_, player := dial(t, srv)

		assert.NotEmpty(t, player.ID)
		assert.NotEmpty(t, player.Name)
		assert.Equal(t, 1, hub.Connections())

		info, err := manager.PlayerInfo(player.ID)
		require.NoError(t, err)
		assert.False(t, info.InGame)
	})

	t.Run("Forgets the player after the socket closes", func(t *testing.T) {
		srv, manager, hub := newTestServer(t)
		conn, player := dial(t, srv)

		require.NoError(t, conn.Close())

		require.Eventually(t, func() bool {
			_, err := manager.PlayerInfo(player.ID)
			return err != nil && hub.Connections() == 0
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestServer_ManagerActions(t *testing.T) {
	t.Run("Replies with the request id", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		conn, _ := dial(t, srv)

		send(t, conn, Message{Kind: KindManager, Action: usecase.ActionCreateGame, Payload: json.RawMessage(`{"name":"lobby"}`), ID: 7})

		reply := readUntil(t, conn, func(frame inbound) bool { return frame.Kind == KindResponse })
		assert.Equal(t, 7, reply.ID)
		assert.False(t, reply.Response.Error, reply.Response.Message)
		assert.Equal(t, usecase.ActionCreateGame, reply.Response.Type)
	})

	t.Run("Replies with a failure for an unknown action", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		conn, _ := dial(t, srv)

		send(t, conn, Message{Kind: KindManager, Action: "fly", ID: 3})

		reply := readUntil(t, conn, func(frame inbound) bool { return frame.Kind == KindResponse })
		assert.Equal(t, 3, reply.ID)
		assert.True(t, reply.Response.Error)
		assert.Equal(t, "fly fail", reply.Response.Type)
	})
}

func TestServer_MalformedMessages(t *testing.T) {
	t.Run("Rejects frames that are not JSON", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		conn, _ := dial(t, srv)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))

		reply := readUntil(t, conn, func(frame inbound) bool { return frame.Kind == KindResponse })
		assert.True(t, reply.Response.Error)
		assert.Equal(t, "message fail", reply.Response.Type)
	})

	t.Run("Rejects an unknown kind", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		conn, _ := dial(t, srv)

		send(t, conn, Message{Kind: "chat", Action: "hello", ID: 1})

		reply := readUntil(t, conn, func(frame inbound) bool { return frame.Kind == KindResponse })
		assert.True(t, reply.Response.Error)
		assert.Equal(t, "message fail", reply.Response.Type)
		assert.Equal(t, 1, reply.ID)
	})
}

func TestServer_GameFlow(t *testing.T) {
	t.Run("Broadcasts game updates to both players", func(t *testing.T) {
		// Given: two connected players in the same game
		srv, _, _ := newTestServer(t)
		alice, _ := dial(t, srv)
		bob, _ := dial(t, srv)

		send(t, alice, Message{Kind: KindManager, Action: usecase.ActionCreateGame, Payload: json.RawMessage(`{"name":"lobby"}`), ID: 1})
		readUntil(t, alice, func(frame inbound) bool { return frame.Kind == KindResponse })

		send(t, bob, Message{Kind: KindManager, Action: usecase.ActionJoinGame, Payload: json.RawMessage(`{"name":"lobby"}`), ID: 2})
		joined := readUntil(t, bob, func(frame inbound) bool { return frame.Kind == KindResponse })
		require.False(t, joined.Response.Error, joined.Response.Message)

		// When: the host starts the round
		send(t, alice, Message{Kind: KindGame, Action: "start"})

		// Then: both players receive the start update
		for _, conn := range []*websocket.Conn{alice, bob} {
			update := readUntil(t, conn, func(frame inbound) bool { return frame.Response.Type == "start" })
			assert.Equal(t, KindUpdate, update.Kind)
			assert.False(t, update.Response.Error)
		}
	})

	t.Run("Sends game errors to the sender only", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		conn, _ := dial(t, srv)

		send(t, conn, Message{Kind: KindGame, Action: "mark", Payload: json.RawMessage(`{"x":0,"y":0}`)})

		update := readUntil(t, conn, func(frame inbound) bool { return frame.Kind == KindUpdate })
		assert.True(t, update.Response.Error)
		assert.Equal(t, "mark fail", update.Response.Type)
	})
}

func TestHub_Disconnect(t *testing.T) {
	t.Run("Closes the connection and runs the cleanup", func(t *testing.T) {
		srv, manager, hub := newTestServer(t)
		conn, player := dial(t, srv)

		hub.Disconnect(player.ID)

		require.Eventually(t, func() bool {
			_, err := manager.PlayerInfo(player.ID)
			return err != nil
		}, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

const UpdateConnected = "connected"

type gameManager interface {
	OnConnect(connID string) (*entity.Player, error)
	OnDisconnect(connID string)
	HandleManagerAction(connID string, action entity.Action) entity.Response
	HandleGameAction(connID string, action entity.Action)
}

type Server struct {
	logger   *slog.Logger
	hub      *Hub
	manager  gameManager
	upgrader websocket.Upgrader
}

func New(logger *slog.Logger, hub *Hub, manager gameManager) *Server {
	return &Server{
		logger:  logger.With("component", "websocket"),
		hub:     hub,
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler routes /ws to the websocket upgrade.
func (that *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws", that.upgradeToWebSocket).Methods(http.MethodGet)

	return router
}

// Start serves websockets on port until ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down websocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := newClient(uuid.NewString(), conn)
	that.hub.register(c)

	player, err := that.manager.OnConnect(c.id)
	if err != nil {
		log.Error("failed to register player", "conn", c.id, "error", err)
		that.hub.unregister(c)
		c.close()
		return
	}

	frame, ok := that.hub.encode(Envelope{Kind: KindUpdate, Response: entity.Success(UpdateConnected, player)})
	if ok {
		c.enqueue(frame)
	}

	log.Info("websocket connection established", "conn", c.id)

	go c.writeLoop(that.logger)
	go that.readLoop(c)
}

// readLoop handles inbound frames until the connection fails, then runs the disconnect cleanup.
func (that *Server) readLoop(c *client) {
	log := that.logger.With("method", "readLoop", "conn", c.id)

	defer func() {
		that.hub.unregister(c)
		that.manager.OnDisconnect(c.id)
		c.close()
		log.Info("websocket connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("unexpected close", "error", err)
			}
			return
		}

		that.handleMessage(c, data)
	}
}

func (that *Server) handleMessage(c *client, data []byte) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		that.hub.reply(c, 0, entity.Failure("message fail", fmt.Errorf("%w: %w", apperror.ErrInvalidPayload, err)))
		return
	}

	action := entity.Action{Name: message.Action, Payload: message.Payload}

	switch message.Kind {
	case KindManager:
		that.hub.reply(c, message.ID, that.manager.HandleManagerAction(c.id, action))
	case KindGame:
		that.manager.HandleGameAction(c.id, action)
	default:
		that.hub.reply(c, message.ID, entity.Failure("message fail", fmt.Errorf("%w: kind %q", apperror.ErrInvalidPayload, message.Kind)))
	}
}

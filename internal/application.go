package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/config"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/metrics"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/repository"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/repository/storage"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/service"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/session"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/usecase"
	"github.com/qin-andy/ultimate-santorini-sub000/transport/rest"
	"github.com/qin-andy/ultimate-santorini-sub000/transport/websocket"
)

// RunApp runs the websocket and HTTP servers until a signal arrives or one of them fails.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []usecase.Option{
		usecase.WithMetrics(metrics.New(registry)),
		usecase.WithMoveService(newMoveService(logger, conf.Bot)),
	}

	// nil while redis is off
	var stats rest.StatsReader

	if conf.Redis.Enabled {
		redisStorage, err := storage.NewRedisStorage(ctx, conf.Redis.Host, conf.Redis.Port)
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		results := repository.NewResultRepository(redisStorage.Connection)
		opts = append(opts, usecase.WithResultRecorder(results))
		stats = results
	}

	hub := websocket.NewHub(logger)
	manager := usecase.NewGameManager(logger, repository.NewPlayerRegistry(), hub, usecase.Settings{
		InactivityTimeout: conf.Game.InactivityTimeout,
		ResetDelay:        conf.Game.ResetDelay,
		WinSize:           conf.Game.WinSize,
		QueueKind:         entity.GameKind(conf.Game.QueueKind),
		BotTimeout:        conf.Bot.Timeout,
	}, opts...)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.New(logger, manager, stats, registry).Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := websocket.New(logger, hub, manager).Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err := <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

func newMoveService(logger *slog.Logger, conf config.Bot) session.MoveService {
	if conf.MoveServiceURL == "" {
		return service.NewRandomMoveService(time.Now().UnixNano())
	}

	return service.NewHTTPMoveService(logger, conf.MoveServiceURL, conf.Timeout)
}

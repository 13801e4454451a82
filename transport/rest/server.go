package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

type gameLister interface {
	ListGames() []entity.GameInfo
}

// StatsReader reads the recorded round outcomes of one kind.
type StatsReader interface {
	Stats(ctx context.Context, kind entity.GameKind) (*entity.Stats, error)
}

// Server exposes health, metrics and read-only lobby data over HTTP.
type Server struct {
	logger   *slog.Logger
	games    gameLister
	stats    StatsReader
	gatherer prometheus.Gatherer
}

// New builds the server. stats may be nil when results are not persisted.
func New(logger *slog.Logger, games gameLister, stats StatsReader, gatherer prometheus.Gatherer) *Server {
	return &Server{
		logger:   logger.With("component", "rest"),
		games:    games,
		stats:    stats,
		gatherer: gatherer,
	}
}

func (that *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ping", that.ping).Methods(http.MethodGet)
	router.HandleFunc("/games", that.listGames).Methods(http.MethodGet)
	router.HandleFunc("/stats/{kind}", that.getStats).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(that.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down http server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) listGames(w http.ResponseWriter, _ *http.Request) {
	that.writeJSON(w, http.StatusOK, that.games.ListGames())
}

func (that *Server) getStats(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "getStats")

	kind := entity.GameKind(mux.Vars(r)["kind"])
	if !kind.Valid() {
		http.Error(w, "unknown game kind", http.StatusBadRequest)
		return
	}

	if that.stats == nil {
		http.Error(w, "results are not recorded", http.StatusNotFound)
		return
	}

	stats, err := that.stats.Stats(r.Context(), kind)
	if err != nil {
		log.Error("failed to read stats", "kind", kind, "error", err)
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}

	that.writeJSON(w, http.StatusOK, stats)
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}

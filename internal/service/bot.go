package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/santorini"
)

var ErrNoAvailableMoves = errors.New("no available moves")

// moveRequest is the board snapshot sent to the move service.
type moveRequest struct {
	Workers   map[santorini.Side][2]santorini.Coord `json:"workers"`
	Elevation [santorini.Size][santorini.Size]int   `json:"elevation"`
	Turn      santorini.Side                        `json:"turn"`
}

// HTTPMoveService asks an external service for the bot's next move.
type HTTPMoveService struct {
	logger *slog.Logger
	client *http.Client
	url    string
}

func NewHTTPMoveService(logger *slog.Logger, url string, timeout time.Duration) *HTTPMoveService {
	return &HTTPMoveService{
		logger: logger.With("component", "move-service"),
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

func (that *HTTPMoveService) NextMove(ctx context.Context, state santorini.State) (santorini.Move, error) {
	log := that.logger.With("method", "NextMove")

	body, err := json.Marshal(moveRequest{
		Workers:   state.Workers,
		Elevation: state.Elevation,
		Turn:      state.Turn,
	})
	if err != nil {
		return santorini.Move{}, fmt.Errorf("failed to marshal board: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, that.url, bytes.NewReader(body))
	if err != nil {
		return santorini.Move{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := that.client.Do(req)
	if err != nil {
		return santorini.Move{}, fmt.Errorf("failed to call move service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return santorini.Move{}, fmt.Errorf("move service returned %s", resp.Status)
	}

	move, err := decodeMove(resp.Body)
	if err != nil {
		return santorini.Move{}, err
	}

	log.Debug("move received", "move", move)

	return move, nil
}

func decodeMove(body io.Reader) (santorini.Move, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return santorini.Move{}, fmt.Errorf("failed to read move: %w", err)
	}

	move, err := entity.Decode[santorini.Move](raw)
	if err != nil {
		return santorini.Move{}, fmt.Errorf("failed to decode move: %w", err)
	}

	return move, nil
}

// RandomMoveService picks a uniformly random legal move. It is used when no move service is configured.
type RandomMoveService struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomMoveService(seed int64) *RandomMoveService {
	return &RandomMoveService{
		rng: rand.New(rand.NewSource(seed)), //nolint: gosec // game moves need no crypto randomness
	}
}

func (that *RandomMoveService) NextMove(_ context.Context, state santorini.State) (santorini.Move, error) {
	moves := santorini.Restore(state).LegalMoves(state.Turn)
	if len(moves) == 0 {
		return santorini.Move{}, ErrNoAvailableMoves
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return moves[that.rng.Intn(len(moves))], nil
}

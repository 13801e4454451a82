package repository

import (
	"fmt"
	"sync"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

// PlayerRegistry maps live connection ids to players. It lives only as long as the process.
type PlayerRegistry struct {
	mu      sync.RWMutex
	players map[string]*entity.Player
}

func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{
		players: make(map[string]*entity.Player),
	}
}

// Add registers a player for connID. Every connection has at most one player.
func (that *PlayerRegistry) Add(connID, name string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.players[connID]; ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrDuplicatePlayer, connID)
	}

	player := &entity.Player{ID: connID, Name: name}
	that.players[connID] = player

	return player, nil
}

func (that *PlayerRegistry) Remove(connID string) (*entity.Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[connID]
	if ok {
		delete(that.players, connID)
	}

	return player, ok
}

func (that *PlayerRegistry) Get(connID string) (*entity.Player, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	player, ok := that.players[connID]
	return player, ok
}

func (that *PlayerRegistry) List() []*entity.Player {
	that.mu.RLock()
	defer that.mu.RUnlock()

	players := make([]*entity.Player, 0, len(that.players))
	for _, player := range that.players {
		players = append(players, player)
	}

	return players
}

func (that *PlayerRegistry) Rename(connID, name string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[connID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrPlayerNotFound, connID)
	}

	player.Name = name

	return player, nil
}

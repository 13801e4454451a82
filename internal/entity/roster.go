package entity

import (
	"fmt"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
)

// Roster is an ordered set of players keyed by id. Join order decides turn order.
// It is not safe for concurrent use; the owning session serializes access.
type Roster struct {
	order   []string
	players map[string]*Player
}

func NewRoster() *Roster {
	return &Roster{
		players: make(map[string]*Player),
	}
}

func (that *Roster) Add(player *Player) error {
	if _, ok := that.players[player.ID]; ok {
		return fmt.Errorf("%w: %s", apperror.ErrDuplicatePlayer, player.ID)
	}

	that.players[player.ID] = player
	that.order = append(that.order, player.ID)

	return nil
}

func (that *Roster) Remove(id string) (*Player, error) {
	player, ok := that.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrPlayerNotFound, id)
	}

	delete(that.players, id)
	for i, playerID := range that.order {
		if playerID == id {
			that.order = append(that.order[:i], that.order[i+1:]...)
			break
		}
	}

	return player, nil
}

func (that *Roster) Get(id string) (*Player, error) {
	player, ok := that.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrPlayerNotFound, id)
	}

	return player, nil
}

func (that *Roster) Has(id string) bool {
	_, ok := that.players[id]
	return ok
}

// Host returns the earliest joined player still present.
func (that *Roster) Host() (*Player, error) {
	if len(that.order) == 0 {
		return nil, apperror.ErrEmptyRoster
	}

	return that.players[that.order[0]], nil
}

func (that *Roster) Len() int {
	return len(that.order)
}

// IDs returns player ids in join order.
func (that *Roster) IDs() []string {
	ids := make([]string, len(that.order))
	copy(ids, that.order)
	return ids
}

// Names returns display names in join order.
func (that *Roster) Names() []string {
	names := make([]string, 0, len(that.order))
	for _, id := range that.order {
		names = append(names, that.players[id].Name)
	}
	return names
}

// Clear empties the roster and returns the removed players in join order.
func (that *Roster) Clear() []*Player {
	removed := make([]*Player, 0, len(that.order))
	for _, id := range that.order {
		removed = append(removed, that.players[id])
	}

	that.order = nil
	that.players = make(map[string]*Player)

	return removed
}

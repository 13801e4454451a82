package santorini

import (
	"fmt"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
)

const (
	Size         = 5
	MaxElevation = 4
	WinElevation = 3

	players = 2
)

type Side string

const (
	Red  Side = "red"
	Blue Side = "blue"
)

func (that Side) Other() Side {
	if that == Red {
		return Blue
	}
	return Red
}

type Phase string

const (
	PhasePlacement Phase = "placement"
	PhaseBuild     Phase = "build"
)

const (
	UpdateStart = "santorini start"
	UpdatePlace = "santorini place"
	UpdateMove  = "santorini move"
	UpdateWin   = "santorini win"

	UpdateDisconnect = "win disconnect"
)

type Coord struct {
	X int `json:"x" validate:"min=-1,max=4"`
	Y int `json:"y" validate:"min=-1,max=4"`
}

var Unplaced = Coord{X: -1, Y: -1}

func (that Coord) InBounds() bool {
	return that.X >= 0 && that.Y >= 0 && that.X < Size && that.Y < Size
}

// Adjacent reports a Chebyshev distance of exactly one.
func (that Coord) Adjacent(other Coord) bool {
	dx, dy := abs(that.X-other.X), abs(that.Y-other.Y)
	return max(dx, dy) == 1
}

// Move is a build-phase action: move the worker, then build next to its new cell.
type Move struct {
	Worker Coord `json:"worker"`
	Move   Coord `json:"move"`
	Build  Coord `json:"build"`
}

// WinMove claims a win by stepping onto an elevation-3 cell without building.
type WinMove struct {
	Worker Coord `json:"worker"`
	Move   Coord `json:"move"`
}

// State is the broadcast view of a round.
type State struct {
	Elevation [Size][Size]int   `json:"elevation"`
	Workers   map[Side][2]Coord `json:"workers"`
	Phase     Phase             `json:"phase"`
	Turn      Side              `json:"turn,omitempty"`
	Sides     map[string]Side   `json:"sides,omitempty"`
	Winner    string            `json:"winner,omitempty"`
}

type Update struct {
	Type  string
	State State
}

// worker slots: red 1, red 2, blue 1, blue 2.
const (
	slotsPerSide = 2
	slotCount    = 4
)

// Game is one Santorini round. It is not safe for concurrent use.
type Game struct {
	elevation [Size * Size]int
	workers   [slotCount]Coord
	phase     Phase
	turn      Side
	first     Side
	running   bool
	placed    int

	sides  map[string]Side
	winner string
	loser  string
}

// New starts a round; the first player is red, the second blue. first picks the side that
// opens the placement phase.
func New(playerIDs []string, first Side) (*Game, Update, error) {
	if len(playerIDs) != players {
		return nil, Update{}, fmt.Errorf("%w: need %d players, have %d", apperror.ErrStartFail, players, len(playerIDs))
	}

	if first != Blue {
		first = Red
	}

	game := &Game{
		phase:   PhasePlacement,
		turn:    first,
		first:   first,
		running: true,
		sides: map[string]Side{
			playerIDs[0]: Red,
			playerIDs[1]: Blue,
		},
	}
	for i := range game.workers {
		game.workers[i] = Unplaced
	}

	state := game.State()
	state.Sides = game.Sides()

	return game, Update{Type: UpdateStart, State: state}, nil
}

// placementSlots is the order workers are placed in: the opening side places one worker,
// the other side both of theirs, then the opening side its second.
func (that *Game) placementSlots() [slotCount]int {
	a, b := sideBase(that.first), sideBase(that.first.Other())
	return [slotCount]int{a, b, b + 1, a + 1}
}

func sideBase(side Side) int {
	if side == Red {
		return 0
	}
	return slotsPerSide
}

// PlaceWorker puts the caller's next worker on target.
func (that *Game) PlaceWorker(playerID string, target Coord) (Update, error) {
	if !that.running {
		return Update{}, apperror.ErrNotRunning
	}

	if that.phase != PhasePlacement {
		return Update{}, fmt.Errorf("%w: %s", apperror.ErrWrongPhase, that.phase)
	}

	side, ok := that.sides[playerID]
	if !ok || side != that.turn {
		return Update{}, apperror.ErrNotYourTurn
	}

	if !target.InBounds() {
		return Update{}, fmt.Errorf("%w: (%d, %d)", apperror.ErrOutOfBounds, target.X, target.Y)
	}

	if that.occupied(target) {
		return Update{}, fmt.Errorf("%w: (%d, %d)", apperror.ErrCellOccupied, target.X, target.Y)
	}

	order := that.placementSlots()
	that.workers[order[that.placed]] = target
	that.placed++

	if that.placed == slotCount {
		that.phase = PhaseBuild
		that.turn = that.sideOf(order[slotCount-1]).Other()
	} else {
		that.turn = that.sideOf(order[that.placed])
	}

	return Update{Type: UpdatePlace, State: that.State()}, nil
}

// MakeMove moves one of the caller's workers and builds next to its new cell.
func (that *Game) MakeMove(playerID string, move Move) (Update, error) {
	side, err := that.checkTurn(playerID)
	if err != nil {
		return Update{}, err
	}

	slot, err := that.validateMove(side, move)
	if err != nil {
		return Update{}, err
	}

	that.workers[slot] = move.Move
	that.elevation[index(move.Build)]++

	if that.elevationAt(move.Move) == WinElevation {
		return that.win(playerID), nil
	}

	that.turn = side.Other()
	if !that.canAct(that.turn) {
		return that.win(playerID), nil
	}

	return Update{Type: UpdateMove, State: that.State()}, nil
}

// MakeWinMove steps onto an elevation-3 cell and ends the round.
func (that *Game) MakeWinMove(playerID string, move WinMove) (Update, error) {
	side, err := that.checkTurn(playerID)
	if err != nil {
		return Update{}, err
	}

	slot, err := that.validateStep(side, move.Worker, move.Move)
	if err != nil {
		return Update{}, err
	}

	if that.elevationAt(move.Move) != WinElevation {
		return Update{}, fmt.Errorf("%w: elevation %d", apperror.ErrWinMoveInvalid, that.elevationAt(move.Move))
	}

	that.workers[slot] = move.Move

	return that.win(playerID), nil
}

func (that *Game) checkTurn(playerID string) (Side, error) {
	if !that.running {
		return "", apperror.ErrNotRunning
	}

	side, ok := that.sides[playerID]
	if !ok || side != that.turn {
		return "", apperror.ErrNotYourTurn
	}

	if that.phase != PhaseBuild {
		return "", fmt.Errorf("%w: %s", apperror.ErrWrongPhase, that.phase)
	}

	return side, nil
}

// validateStep checks the worker ownership and the move destination.
func (that *Game) validateStep(side Side, worker, target Coord) (int, error) {
	slot := that.workerSlot(side, worker)
	if slot < 0 {
		return -1, fmt.Errorf("%w: (%d, %d)", apperror.ErrNotYourWorker, worker.X, worker.Y)
	}

	if !target.InBounds() {
		return -1, fmt.Errorf("%w: (%d, %d)", apperror.ErrOutOfBounds, target.X, target.Y)
	}

	if !worker.Adjacent(target) {
		return -1, fmt.Errorf("%w: move (%d, %d)", apperror.ErrNotAdjacent, target.X, target.Y)
	}

	if that.occupied(target) {
		return -1, fmt.Errorf("%w: move (%d, %d)", apperror.ErrCellOccupied, target.X, target.Y)
	}

	if that.elevationAt(target)-that.elevationAt(worker) > 1 {
		return -1, fmt.Errorf("%w: move (%d, %d)", apperror.ErrTooHigh, target.X, target.Y)
	}

	if that.elevationAt(target) >= MaxElevation {
		return -1, fmt.Errorf("%w: move (%d, %d)", apperror.ErrCapped, target.X, target.Y)
	}

	return slot, nil
}

func (that *Game) validateMove(side Side, move Move) (int, error) {
	slot := that.workerSlot(side, move.Worker)
	if slot < 0 {
		return -1, fmt.Errorf("%w: (%d, %d)", apperror.ErrNotYourWorker, move.Worker.X, move.Worker.Y)
	}

	if !move.Move.InBounds() || !move.Build.InBounds() {
		return -1, apperror.ErrOutOfBounds
	}

	if !move.Worker.Adjacent(move.Move) || !move.Move.Adjacent(move.Build) {
		return -1, apperror.ErrNotAdjacent
	}

	if that.occupied(move.Move) {
		return -1, fmt.Errorf("%w: move (%d, %d)", apperror.ErrCellOccupied, move.Move.X, move.Move.Y)
	}

	// the worker's own cell is vacated by the move
	if move.Build != move.Worker && that.occupied(move.Build) {
		return -1, fmt.Errorf("%w: build (%d, %d)", apperror.ErrCellOccupied, move.Build.X, move.Build.Y)
	}

	if that.elevationAt(move.Move)-that.elevationAt(move.Worker) > 1 {
		return -1, fmt.Errorf("%w: move (%d, %d)", apperror.ErrTooHigh, move.Move.X, move.Move.Y)
	}

	if that.elevationAt(move.Move) >= MaxElevation || that.elevationAt(move.Build) > WinElevation {
		return -1, apperror.ErrCapped
	}

	return slot, nil
}

func (that *Game) win(playerID string) Update {
	that.running = false
	that.winner = playerID
	that.loser = that.opponentOf(playerID)

	state := that.State()
	state.Turn = ""
	state.Winner = playerID

	return Update{Type: UpdateWin, State: state}
}

// canAct reports whether side has any legal move or win move.
func (that *Game) canAct(side Side) bool {
	if len(that.LegalMoves(side)) > 0 {
		return true
	}

	for _, worker := range that.sideWorkers(side) {
		for _, target := range neighbours(worker) {
			if _, err := that.validateStep(side, worker, target); err == nil && that.elevationAt(target) == WinElevation {
				return true
			}
		}
	}

	return false
}

// LegalMoves enumerates every move that MakeMove would accept for side.
func (that *Game) LegalMoves(side Side) []Move {
	var moves []Move

	for _, worker := range that.sideWorkers(side) {
		for _, target := range neighbours(worker) {
			for _, build := range neighbours(target) {
				move := Move{Worker: worker, Move: target, Build: build}
				if _, err := that.validateMove(side, move); err == nil {
					moves = append(moves, move)
				}
			}
		}
	}

	return moves
}

func (that *Game) sideWorkers(side Side) []Coord {
	base := sideBase(side)
	workers := make([]Coord, 0, slotsPerSide)
	for _, worker := range that.workers[base : base+slotsPerSide] {
		if worker != Unplaced {
			workers = append(workers, worker)
		}
	}
	return workers
}

func neighbours(c Coord) []Coord {
	result := make([]Coord, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			next := Coord{X: c.X + dx, Y: c.Y + dy}
			if (dx != 0 || dy != 0) && next.InBounds() {
				result = append(result, next)
			}
		}
	}
	return result
}

func (that *Game) workerSlot(side Side, c Coord) int {
	if !c.InBounds() {
		return -1
	}

	base := sideBase(side)
	for slot := base; slot < base+slotsPerSide; slot++ {
		if that.workers[slot] == c {
			return slot
		}
	}
	return -1
}

func (that *Game) sideOf(slot int) Side {
	if slot < slotsPerSide {
		return Red
	}
	return Blue
}

func (that *Game) occupied(c Coord) bool {
	for _, worker := range that.workers {
		if worker == c {
			return true
		}
	}
	return false
}

func (that *Game) elevationAt(c Coord) int {
	return that.elevation[index(c)]
}

func index(c Coord) int {
	return c.Y*Size + c.X
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (that *Game) State() State {
	state := State{
		Workers: map[Side][2]Coord{
			Red:  {that.workers[0], that.workers[1]},
			Blue: {that.workers[2], that.workers[3]},
		},
		Phase: that.phase,
	}
	for i, height := range that.elevation {
		state.Elevation[i/Size][i%Size] = height
	}
	if that.running {
		state.Turn = that.turn
	}

	return state
}

func (that *Game) Sides() map[string]Side {
	sides := make(map[string]Side, len(that.sides))
	for id, side := range that.sides {
		sides[id] = side
	}
	return sides
}

func (that *Game) Running() bool {
	return that.running
}

func (that *Game) Phase() Phase {
	return that.phase
}

func (that *Game) Turn() Side {
	return that.turn
}

// TurnPlayer returns the id of the player whose side is to act.
func (that *Game) TurnPlayer() string {
	for id, side := range that.sides {
		if side == that.turn {
			return id
		}
	}
	return ""
}

func (that *Game) Result() (winner, loser string) {
	return that.winner, that.loser
}

// Forfeit ends the round because playerID left; the remaining player wins.
func (that *Game) Forfeit(playerID string) Update {
	update := that.win(that.opponentOf(playerID))
	update.Type = UpdateDisconnect
	return update
}

func (that *Game) opponentOf(playerID string) string {
	for id := range that.sides {
		if id != playerID {
			return id
		}
	}
	return ""
}

// Restore rebuilds a position from a broadcast state so moves can be searched on it.
// The restored game has no players attached.
func Restore(state State) *Game {
	game := &Game{
		phase:   state.Phase,
		turn:    state.Turn,
		first:   Red,
		running: true,
		sides:   map[string]Side{},
	}

	red, blue := state.Workers[Red], state.Workers[Blue]
	game.workers = [slotCount]Coord{red[0], red[1], blue[0], blue[1]}
	for _, worker := range game.workers {
		if worker != Unplaced {
			game.placed++
		}
	}

	for y := range state.Elevation {
		for x, height := range state.Elevation[y] {
			game.elevation[y*Size+x] = height
		}
	}

	return game
}

package tictactoe

import (
	"fmt"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
)

type Mark string

const (
	MarkA Mark = "o"
	MarkB Mark = "x"
	Empty Mark = "*"
)

const (
	DefaultWidth   = 3
	DefaultHeight  = 3
	DefaultWinSize = 3

	players = 2
)

const (
	UpdateStart = "start"
	UpdateMark  = "mark"
	UpdateWin   = "win"
	UpdateTie   = "tie"

	UpdateDisconnect = "player disconnect"
)

type Options struct {
	Width     int
	Height    int
	WinSize   int
	FirstTurn Mark
}

// State is the broadcast view of a board.
type State struct {
	Board   []Mark          `json:"board"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	WinSize int             `json:"winSize"`
	Turn    Mark            `json:"turn,omitempty"`
	Marks   map[string]Mark `json:"marks,omitempty"`
	Mark    Mark            `json:"mark,omitempty"`
	Winner  string          `json:"winner,omitempty"`
	Squares []int           `json:"squares,omitempty"`
	Last    *Square         `json:"last,omitempty"`
}

type Square struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Update struct {
	Type  string
	State State
}

// Game is one round of an N×M align-K board. It is not safe for concurrent use.
type Game struct {
	width   int
	height  int
	winSize int

	board   []Mark
	turn    Mark
	marked  int
	running bool

	marks  map[string]Mark
	winner string
	loser  string
	tie    bool
}

// New starts a round for exactly two players; the first one gets MarkA.
func New(playerIDs []string, opts Options) (*Game, Update, error) {
	if len(playerIDs) != players {
		return nil, Update{}, fmt.Errorf("%w: need %d players, have %d", apperror.ErrStartFail, players, len(playerIDs))
	}

	opts = withDefaults(opts)
	if opts.Width < 1 || opts.Height < 1 || opts.WinSize < 1 {
		return nil, Update{}, fmt.Errorf("%w: invalid board %dx%d win %d", apperror.ErrStartFail, opts.Width, opts.Height, opts.WinSize)
	}

	board := make([]Mark, opts.Width*opts.Height)
	for i := range board {
		board[i] = Empty
	}

	game := &Game{
		width:   opts.Width,
		height:  opts.Height,
		winSize: opts.WinSize,
		board:   board,
		turn:    opts.FirstTurn,
		running: true,
		marks: map[string]Mark{
			playerIDs[0]: MarkA,
			playerIDs[1]: MarkB,
		},
	}

	state := game.State()
	state.Marks = game.Marks()

	return game, Update{Type: UpdateStart, State: state}, nil
}

func withDefaults(opts Options) Options {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultHeight
	}
	if opts.WinSize == 0 {
		opts.WinSize = DefaultWinSize
	}
	if opts.FirstTurn != MarkB {
		opts.FirstTurn = MarkA
	}
	return opts
}

// Mark places the caller's token at (x, y).
func (that *Game) Mark(playerID string, x, y int) (Update, error) {
	if !that.running {
		return Update{}, apperror.ErrNotRunning
	}

	if x < 0 || y < 0 || x >= that.width || y >= that.height {
		return Update{}, fmt.Errorf("%w: (%d, %d)", apperror.ErrOutOfBounds, x, y)
	}

	mark, ok := that.marks[playerID]
	if !ok || mark != that.turn {
		return Update{}, apperror.ErrNotYourTurn
	}

	index := that.index(x, y)
	if that.board[index] != Empty {
		return Update{}, fmt.Errorf("%w: (%d, %d)", apperror.ErrCellOccupied, x, y)
	}

	that.board[index] = mark
	that.marked++

	if squares, won := that.CheckWin(x, y); won {
		that.running = false
		that.winner = playerID
		that.loser = that.opponentOf(playerID)

		state := that.State()
		state.Turn = ""
		state.Mark = mark
		state.Winner = playerID
		state.Squares = squares
		state.Last = &Square{X: x, Y: y}

		return Update{Type: UpdateWin, State: state}, nil
	}

	if that.marked == len(that.board) {
		that.running = false
		that.tie = true

		state := that.State()
		state.Turn = ""
		state.Last = &Square{X: x, Y: y}

		return Update{Type: UpdateTie, State: state}, nil
	}

	that.turn = toggleMark(that.turn)

	state := that.State()
	state.Mark = mark
	state.Last = &Square{X: x, Y: y}

	return Update{Type: UpdateMark, State: state}, nil
}

// CheckWin reports whether the mark at (x, y) completes a run of winSize through that cell
// and returns the board indices of the run.
func (that *Game) CheckWin(x, y int) ([]int, bool) {
	if x < 0 || y < 0 || x >= that.width || y >= that.height {
		return nil, false
	}

	mark := that.board[that.index(x, y)]
	if mark == Empty {
		return nil, false
	}

	// row
	if squares, ok := that.scan(mark, 0, y, 1, 0, that.width); ok {
		return squares, true
	}

	// column
	if squares, ok := that.scan(mark, x, 0, 0, 1, that.height); ok {
		return squares, true
	}

	// top-left to bottom-right
	back := min(x, y)
	forward := min(that.width-1-x, that.height-1-y)
	if squares, ok := that.scan(mark, x-back, y-back, 1, 1, back+forward+1); ok {
		return squares, true
	}

	// bottom-left to top-right
	back = min(x, that.height-1-y)
	forward = min(that.width-1-x, y)
	if squares, ok := that.scan(mark, x-back, y+back, 1, -1, back+forward+1); ok {
		return squares, true
	}

	return nil, false
}

// scan walks length cells from (x, y) by (dx, dy), counting consecutive marks.
func (that *Game) scan(mark Mark, x, y, dx, dy, length int) ([]int, bool) {
	run := make([]int, 0, that.winSize)

	for i := 0; i < length; i++ {
		index := that.index(x+i*dx, y+i*dy)
		if that.board[index] != mark {
			run = run[:0]
			continue
		}

		run = append(run, index)
		if len(run) == that.winSize {
			return run, true
		}
	}

	return nil, false
}

func (that *Game) index(x, y int) int {
	return y*that.width + x
}

func (that *Game) opponentOf(playerID string) string {
	for id := range that.marks {
		if id != playerID {
			return id
		}
	}
	return ""
}

func toggleMark(mark Mark) Mark {
	if mark == MarkA {
		return MarkB
	}
	return MarkA
}

func (that *Game) State() State {
	board := make([]Mark, len(that.board))
	copy(board, that.board)

	state := State{
		Board:   board,
		Width:   that.width,
		Height:  that.height,
		WinSize: that.winSize,
	}
	if that.running {
		state.Turn = that.turn
	}

	return state
}

// Marks maps player ids to their tokens.
func (that *Game) Marks() map[string]Mark {
	marks := make(map[string]Mark, len(that.marks))
	for id, mark := range that.marks {
		marks[id] = mark
	}
	return marks
}

func (that *Game) Running() bool {
	return that.running
}

func (that *Game) Turn() Mark {
	return that.turn
}

// TurnPlayer returns the id holding the current turn token.
func (that *Game) TurnPlayer() string {
	for id, mark := range that.marks {
		if mark == that.turn {
			return id
		}
	}
	return ""
}

func (that *Game) Marked() int {
	return that.marked
}

// Result reports the finished round: winner and loser ids, or tie.
func (that *Game) Result() (winner, loser string, tie bool) {
	return that.winner, that.loser, that.tie
}

// Forfeit ends the round because playerID left; the opponent is recorded as the winner.
func (that *Game) Forfeit(playerID string) Update {
	that.running = false
	that.loser = playerID
	that.winner = that.opponentOf(playerID)

	state := that.State()
	state.Winner = that.winner

	return Update{Type: UpdateDisconnect, State: state}
}

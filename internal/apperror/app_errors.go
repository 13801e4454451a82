package apperror

import "errors"

// manager preconditions.
var (
	ErrAlreadyInGame  = errors.New("player is already in a game")
	ErrAlreadyQueued  = errors.New("player is already in the matchmaking queue")
	ErrNotQueued      = errors.New("player is not in the matchmaking queue")
	ErrNameTaken      = errors.New("game name is already taken")
	ErrGameNotFound   = errors.New("game not found")
	ErrGameInProgress = errors.New("game is in progress")
	ErrGameFull       = errors.New("game is full")
	ErrNotInGame      = errors.New("player is not in a game")
	ErrUnknownKind    = errors.New("unknown game kind")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownAction  = errors.New("unknown action")
	ErrNameInGame     = errors.New("name can't be changed during a game")
)

// round lifecycle.
var (
	ErrStartFail      = errors.New("start fail")
	ErrResetFail      = errors.New("reset fail")
	ErrAlreadyRunning = errors.New("game is already running")
	ErrNotRunning     = errors.New("game is not running")
)

// rule violations.
var (
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrNotYourTurn    = errors.New("it's not your turn")
	ErrCellOccupied   = errors.New("cell is already occupied")
	ErrWrongPhase     = errors.New("wrong game phase")
	ErrNotYourWorker  = errors.New("worker does not belong to player")
	ErrNotAdjacent    = errors.New("destination is not adjacent")
	ErrTooHigh        = errors.New("destination is too high to climb")
	ErrCapped         = errors.New("destination is capped")
	ErrWinMoveInvalid = errors.New("win move invalid")
)

// invariant violations: caller bugs, never sent to other players.
var (
	ErrPlayerNotFound  = errors.New("player does not exist")
	ErrDuplicatePlayer = errors.New("player already exists")
	ErrEmptyRoster     = errors.New("roster is empty")
)

package entity

import "time"

type GameKind string

const (
	KindTicTacToe    GameKind = "tictactoe"
	KindSantorini    GameKind = "santorini"
	KindSantoriniBot GameKind = "santorini-bot"
)

func (that GameKind) Valid() bool {
	switch that {
	case KindTicTacToe, KindSantorini, KindSantoriniBot:
		return true
	default:
		return false
	}
}

type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeTie     Outcome = "tie"
	OutcomeForfeit Outcome = "forfeit"
)

// GameInfo is the public summary of a session.
type GameInfo struct {
	Name    string   `json:"name"`
	Kind    GameKind `json:"kind"`
	Players []string `json:"players"`
	Running bool     `json:"running"`
	Active  bool     `json:"active"`
}

// CreateOptions is the payload of a "create game" action.
type CreateOptions struct {
	Name     string   `json:"name" validate:"required,max=32"`
	Kind     GameKind `json:"kind" validate:"omitempty,oneof=tictactoe santorini santorini-bot"`
	Width    int      `json:"width" validate:"omitempty,min=1,max=32"`
	Height   int      `json:"height" validate:"omitempty,min=1,max=32"`
	WinSize  int      `json:"winSize" validate:"omitempty,min=1,max=32"`
	Autoplay bool     `json:"autoplay"`
}

// RoundResult describes one finished round.
type RoundResult struct {
	Game       string    `json:"game"`
	Kind       GameKind  `json:"kind"`
	Outcome    Outcome   `json:"outcome"`
	Winner     string    `json:"winner,omitempty"`
	Loser      string    `json:"loser,omitempty"`
	Players    []string  `json:"players"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Stats aggregates recorded round outcomes for one kind.
type Stats struct {
	Kind     GameKind        `json:"kind"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Recent   []RoundResult   `json:"recent"`
}

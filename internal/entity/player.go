package entity

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlayerInfo is a player together with its current game, if any.
type PlayerInfo struct {
	Player *Player `json:"player"`
	InGame bool    `json:"inGame"`
	Game   string  `json:"game,omitempty"`
	Queued bool    `json:"queued"`
}

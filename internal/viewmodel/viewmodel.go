package viewmodel

import "time"

// RoomLink is one entry in the home page room list.
type RoomLink struct {
	ID  uint64
	URL string
}

// HomePage holds data for the landing page.
type HomePage struct {
	Title   string
	Account string
	ChainID string
	CanSign bool
	Rooms   []RoomLink
	Error   string
}

// Cell is one rendered board square.
type Cell struct {
	Glyph string
	Class string
}

// BoardFragment holds the composed board.
type BoardFragment struct {
	RoomID   uint64
	Rows     [][]Cell
	Text     string
	Block    uint64
	Started  bool
	Position string
}

// PlayerEntry is one address in the room.
type PlayerEntry struct {
	Address string
	Short   string
	IsYou   bool
}

// PlayersFragment holds data for the players panel.
type PlayersFragment struct {
	RoomID  uint64
	Players []PlayerEntry
	CanJoin bool
}

// ScoresFragment holds both scores.
type ScoresFragment struct {
	RoomID uint64
	Mine   uint64
	Enemy  uint64
}

// StatusFragment holds the match status and the controls it enables.
// CanPlay gates the keyboard and the piece controls.
type StatusFragment struct {
	RoomID     uint64
	Status     string
	Label      string
	Winner     string
	HasWinner  bool
	Won        bool
	CanStart   bool
	CanRestart bool
	CanPlay    bool
	ReadOnly   bool
	Pieces     []PieceOption
}

// PieceOption is a choice in the next-piece selector.
type PieceOption struct {
	Value int
	Label string
}

// RoomPage holds data for the room page template.
type RoomPage struct {
	Title     string
	RoomID    uint64
	InviteURL string
	Account   string
	Board     BoardFragment
	Players   PlayersFragment
	Scores    ScoresFragment
	Status    StatusFragment
}

// Location is the JSON form of both piece origins.
type Location struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	EnemyX int `json:"enemyX"`
	EnemyY int `json:"enemyY"`
}

// Score is the JSON form of both scores.
type Score struct {
	Mine  uint64 `json:"mine"`
	Enemy uint64 `json:"enemy"`
}

// State is the JSON snapshot served at /room/{id}/state.
type State struct {
	Room      uint64    `json:"room"`
	Status    string    `json:"status"`
	Started   bool      `json:"started"`
	Account   string    `json:"account"`
	Players   []string  `json:"players"`
	Joined    bool      `json:"joined"`
	Location  Location  `json:"location"`
	Score     Score     `json:"score"`
	Winner    string    `json:"winner,omitempty"`
	Board     []string  `json:"board"`
	Block     uint64    `json:"block"`
	UpdatedAt time.Time `json:"updatedAt"`
}

package chain

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Contract event names.
const (
	EventPlayerJoined = "PlayerJoined"
	EventGameStarted  = "GameStarted"
	EventGameOver     = "GameOver"
	EventPieceMoved   = "PieceMoved"
	EventPieceRotated = "PieceRotated"
	EventLineCleared  = "LineCleared"
)

// EventNames lists the events the client listens for.
var EventNames = []string{
	EventPlayerJoined,
	EventGameStarted,
	EventGameOver,
	EventPieceMoved,
	EventPieceRotated,
	EventLineCleared,
}

// Cell values stored in a board grid.
const (
	CellEmpty  uint8 = 0
	CellFilled uint8 = 1
)

// Location is the origin of the caller's piece and the opponent's piece.
type Location struct {
	X      int
	Y      int
	EnemyX int
	EnemyY int
}

// Shape is a piece mask; cells equal to CellFilled are occupied.
type Shape [][]uint8

// Grid is the board as stored by the contract, row-major.
type Grid [][]uint8

// Clone returns a deep copy of the grid.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]uint8(nil), row...)
	}
	return out
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape(Grid(s).Clone())
}

// Score is the caller's and the opponent's score.
type Score struct {
	Mine  uint64
	Enemy uint64
}

// Event is a decoded contract log.
type Event struct {
	Name   string
	RoomID uint64
	Player common.Address
	Values []int64
	Block  uint64
	TxHash common.Hash
	Index  uint
}

// Key identifies the log the event came from.
func (e Event) Key() string {
	return e.TxHash.Hex() + ":" + strconv.FormatUint(uint64(e.Index), 10)
}

// TxResult describes a mined transaction.
type TxResult struct {
	Method  string
	Hash    common.Hash
	Block   uint64
	GasUsed uint64
}

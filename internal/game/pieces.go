package game

import (
	"strconv"
	"strings"
)

// PieceType identifies a tetromino for selectNextPiece.
type PieceType uint8

const (
	PieceI PieceType = iota
	PieceO
	PieceT
	PieceS
	PieceZ
	PieceJ
	PieceL
)

// Pieces lists the standard tetrominoes in contract order.
var Pieces = []PieceType{PieceI, PieceO, PieceT, PieceS, PieceZ, PieceJ, PieceL}

const pieceLetters = "IOTSZJL"

// String returns the tetromino letter, or "#n" for types outside the standard set.
func (p PieceType) String() string {
	if int(p) < len(pieceLetters) {
		return pieceLetters[p : p+1]
	}
	return "#" + strconv.Itoa(int(p))
}

// ParsePiece accepts a tetromino letter (case-insensitive) or a number 0-255.
func ParsePiece(s string) (PieceType, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		if i := strings.IndexByte(pieceLetters, strings.ToUpper(s)[0]); i >= 0 {
			return PieceType(i), true
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return PieceType(n), true
}

package game

import "errors"

var (
	// ErrReadOnly is returned for actions when the client has no signing key.
	ErrReadOnly = errors.New("game: no signing key configured")
	// ErrInvalidMove is returned for a move that is not one step in one direction.
	ErrInvalidMove = errors.New("game: invalid move")
)

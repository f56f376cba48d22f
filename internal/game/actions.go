package game

import (
	"context"
	"fmt"

	"chaintetris/internal/chain"
)

// act sends one transaction for a room and refreshes the parts it affects from
// the receipt's block onward, so the caller sees the result of its own action.
func (s *Store) act(ctx context.Context, id uint64, parts Part, send func(context.Context) (chain.TxResult, error)) (chain.TxResult, error) {
	if !s.chain.CanSign() {
		return chain.TxResult{}, ErrReadOnly
	}
	room := s.Room(id)
	res, err := send(ctx)
	if err != nil {
		return res, err
	}
	s.refreshAndPublish(ctx, room, parts, res.Block)
	return res, nil
}

// CreateRoom opens a new room; the room list is re-read on next access.
func (s *Store) CreateRoom(ctx context.Context) (chain.TxResult, error) {
	if !s.chain.CanSign() {
		return chain.TxResult{}, ErrReadOnly
	}
	res, err := s.chain.CreateRoom(ctx)
	if err != nil {
		return res, err
	}
	s.invalidateRooms()
	return res, nil
}

// Join adds the account to the room.
func (s *Store) Join(ctx context.Context, id uint64) (chain.TxResult, error) {
	res, err := s.act(ctx, id, PartPlayers, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.JoinRoom(ctx, id)
	})
	if err == nil {
		s.invalidateRooms()
	}
	return res, err
}

// Start begins the match.
func (s *Store) Start(ctx context.Context, id uint64) (chain.TxResult, error) {
	return s.statusAction(ctx, id, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.StartGame(ctx, id)
	})
}

// Restart resets a finished match and starts it again.
func (s *Store) Restart(ctx context.Context, id uint64) (chain.TxResult, error) {
	return s.statusAction(ctx, id, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.RestartGame(ctx, id)
	})
}

func (s *Store) statusAction(ctx context.Context, id uint64, send func(context.Context) (chain.TxResult, error)) (chain.TxResult, error) {
	if !s.chain.CanSign() {
		return chain.TxResult{}, ErrReadOnly
	}
	room := s.Room(id)
	res, err := send(ctx)
	if err != nil {
		return res, err
	}
	if room.setStatus(res.Block, StatusInProgress) {
		s.Publish(id, PartStatus.Fragment())
	}
	s.refreshAndPublish(ctx, room, PartView|PartPlayers|PartScore, res.Block)
	return res, nil
}

// Move shifts the account's piece one step: dx and dy are each -1, 0 or 1, not both 0.
func (s *Store) Move(ctx context.Context, id uint64, dx, dy int) (chain.TxResult, error) {
	if dx < -1 || dx > 1 || dy < -1 || dy > 1 || (dx == 0 && dy == 0) {
		return chain.TxResult{}, fmt.Errorf("%w: (%d, %d)", ErrInvalidMove, dx, dy)
	}
	return s.act(ctx, id, PartView, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.MovePiece(ctx, id, dx, dy)
	})
}

// Rotate turns the account's piece.
func (s *Store) Rotate(ctx context.Context, id uint64) (chain.TxResult, error) {
	return s.act(ctx, id, PartView, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.RotatePiece(ctx, id)
	})
}

// HardDrop drops the account's piece; lines may clear so the score is re-read too.
func (s *Store) HardDrop(ctx context.Context, id uint64) (chain.TxResult, error) {
	return s.act(ctx, id, PartView|PartScore|PartStatus, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.HardDropPiece(ctx, id)
	})
}

// SelectPiece picks the account's next piece.
func (s *Store) SelectPiece(ctx context.Context, id uint64, piece PieceType) (chain.TxResult, error) {
	return s.act(ctx, id, PartView, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.SelectNextPiece(ctx, id, uint8(piece))
	})
}

// Tick advances the room by one gravity step.
func (s *Store) Tick(ctx context.Context, id uint64) (chain.TxResult, error) {
	return s.act(ctx, id, PartView|PartScore|PartStatus, func(ctx context.Context) (chain.TxResult, error) {
		return s.chain.UpdateGame(ctx, id)
	})
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

// transact sends method, waits for its receipt and checks the status.
func (c *Client) transact(ctx context.Context, method string, args ...int64) (TxResult, error) {
	started := time.Now()
	res, err := c.send(ctx, method, args...)
	result := "ok"
	switch {
	case errors.Is(err, ErrReverted):
		result = "reverted"
	case err != nil:
		result = "error"
	}
	c.metrics.ObserveTx(method, result, time.Since(started))
	if err != nil {
		c.log.Warn("transaction failed", "method", method, "args", args, "err", err)
		return res, err
	}
	c.log.Info("transaction mined", "method", method, "args", args, "tx", res.Hash.Hex(), "block", res.Block, "gas", res.GasUsed)
	return res, nil
}

func (c *Client) send(ctx context.Context, method string, args ...int64) (TxResult, error) {
	res := TxResult{Method: method}
	if c.signer == nil {
		return res, fmt.Errorf("%s: %w", method, ErrNoSigner)
	}
	m, ok := c.abi.Methods[method]
	if !ok {
		return res, fmt.Errorf("%s: %w: method not in abi", method, ErrBadConfig)
	}
	params, err := packArgs(m, args...)
	if err != nil {
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TxTimeout)
	defer cancel()

	opts := *c.signer
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return res, fmt.Errorf("%s: send: %w", method, err)
	}
	res.Hash = tx.Hash()

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return res, fmt.Errorf("%s: wait %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.BlockNumber != nil {
		res.Block = receipt.BlockNumber.Uint64()
	}
	res.GasUsed = receipt.GasUsed
	if receipt.Status != types.ReceiptStatusSuccessful {
		return res, fmt.Errorf("%s: %w: %s", method, ErrReverted, tx.Hash().Hex())
	}
	return res, nil
}

// CreateRoom opens a new room owned by the account.
func (c *Client) CreateRoom(ctx context.Context) (TxResult, error) {
	return c.transact(ctx, methodCreateRoom)
}

// JoinRoom adds the account to room.
func (c *Client) JoinRoom(ctx context.Context, room uint64) (TxResult, error) {
	return c.transact(ctx, methodJoinRoom, roomArg(room))
}

// StartGame starts the match in room.
func (c *Client) StartGame(ctx context.Context, room uint64) (TxResult, error) {
	return c.transact(ctx, methodStartGame, roomArg(room))
}

// RestartGame resets a finished match in room.
func (c *Client) RestartGame(ctx context.Context, room uint64) (TxResult, error) {
	return c.transact(ctx, methodRestartGame, roomArg(room))
}

// MovePiece shifts the account's piece by (dx, dy).
func (c *Client) MovePiece(ctx context.Context, room uint64, dx, dy int) (TxResult, error) {
	return c.transact(ctx, methodMovePiece, roomArg(room), int64(dx), int64(dy))
}

// RotatePiece rotates the account's piece.
func (c *Client) RotatePiece(ctx context.Context, room uint64) (TxResult, error) {
	return c.transact(ctx, methodRotatePiece, roomArg(room))
}

// HardDropPiece drops the account's piece to the bottom.
func (c *Client) HardDropPiece(ctx context.Context, room uint64) (TxResult, error) {
	return c.transact(ctx, methodHardDropPiece, roomArg(room))
}

// SelectNextPiece chooses the next piece type for the account.
func (c *Client) SelectNextPiece(ctx context.Context, room uint64, pieceType uint8) (TxResult, error) {
	return c.transact(ctx, methodSelectNextPiece, roomArg(room), int64(pieceType))
}

// UpdateGame advances the room by one gravity step.
func (c *Client) UpdateGame(ctx context.Context, room uint64) (TxResult, error) {
	return c.transact(ctx, methodUpdateGame, roomArg(room))
}

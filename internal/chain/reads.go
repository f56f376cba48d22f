package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.backend.BlockNumber(ctx)
}

// call runs a view method as the client's account. block 0 reads the latest state.
func (c *Client) call(ctx context.Context, block uint64, method string, args ...int64) ([]any, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s: %w: method not in abi", method, ErrBadConfig)
	}
	params, err := packArgs(m, args...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	opts := &bind.CallOpts{Context: ctx, From: c.account}
	if block > 0 {
		opts.BlockNumber = new(big.Int).SetUint64(block)
	}
	var out []any
	if err := c.contract.Call(opts, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w: empty result", method, ErrBadResult)
	}
	return out, nil
}

// roomArg converts a room id for packArgs. Ids past MaxInt64 turn negative
// and are rejected there against the uint256 parameter.
func roomArg(room uint64) int64 {
	return int64(room)
}

// ActiveRooms lists the ids of rooms the contract considers open.
func (c *Client) ActiveRooms(ctx context.Context, block uint64) ([]uint64, error) {
	out, err := c.call(ctx, block, methodGetActiveRooms)
	if err != nil {
		return nil, err
	}
	rooms, err := toUint64s(out[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetActiveRooms, err)
	}
	return rooms, nil
}

// Players lists the addresses that joined the room.
func (c *Client) Players(ctx context.Context, room uint64, block uint64) ([]common.Address, error) {
	out, err := c.call(ctx, block, methodGetListPlayer, roomArg(room))
	if err != nil {
		return nil, err
	}
	players, err := toAddresses(out[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetListPlayer, err)
	}
	return players, nil
}

// Location returns the caller's and the opponent's piece origins.
func (c *Client) Location(ctx context.Context, room uint64, block uint64) (Location, error) {
	out, err := c.call(ctx, block, methodGetLocation, roomArg(room))
	if err != nil {
		return Location{}, err
	}
	values, err := flattenInts(out, 4)
	if err != nil {
		return Location{}, fmt.Errorf("%s: %w", methodGetLocation, err)
	}
	return Location{
		X:      int(values[0]),
		Y:      int(values[1]),
		EnemyX: int(values[2]),
		EnemyY: int(values[3]),
	}, nil
}

// CurrentPiece returns the caller's falling piece mask.
func (c *Client) CurrentPiece(ctx context.Context, room uint64, block uint64) (Shape, error) {
	return c.shape(ctx, block, methodGetCurrentPiece, room)
}

// EnemyPiece returns the opponent's falling piece mask.
func (c *Client) EnemyPiece(ctx context.Context, room uint64, block uint64) (Shape, error) {
	return c.shape(ctx, block, methodGetEnemyPiece, room)
}

func (c *Client) shape(ctx context.Context, block uint64, method string, room uint64) (Shape, error) {
	out, err := c.call(ctx, block, method, roomArg(room))
	if err != nil {
		return nil, err
	}
	grid, err := toGrid(out[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return Shape(grid), nil
}

// Board returns the room's settled cells.
func (c *Client) Board(ctx context.Context, room uint64, block uint64) (Grid, error) {
	out, err := c.call(ctx, block, methodGetBoard, roomArg(room))
	if err != nil {
		return nil, err
	}
	grid, err := toGrid(out[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetBoard, err)
	}
	return grid, nil
}

// Score returns the caller's and the opponent's score.
func (c *Client) Score(ctx context.Context, room uint64, block uint64) (Score, error) {
	out, err := c.call(ctx, block, methodGetScore, roomArg(room))
	if err != nil {
		return Score{}, err
	}
	values, err := flattenInts(out, 2)
	if err != nil {
		return Score{}, fmt.Errorf("%s: %w", methodGetScore, err)
	}
	if values[0] < 0 || values[1] < 0 {
		return Score{}, fmt.Errorf("%s: %w: negative score", methodGetScore, ErrBadResult)
	}
	return Score{Mine: uint64(values[0]), Enemy: uint64(values[1])}, nil
}

// Winner returns the winner of the room, or the zero address while undecided.
// Deployments without getWinner report no winner.
func (c *Client) Winner(ctx context.Context, room uint64, block uint64) (common.Address, error) {
	if _, ok := c.abi.Methods[methodGetWinner]; !ok {
		return common.Address{}, nil
	}
	out, err := c.call(ctx, block, methodGetWinner, roomArg(room))
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: %w: got %T", methodGetWinner, ErrBadResult, out[0])
	}
	return addr, nil
}

// flattenInts accepts either n scalar outputs or a single n-element array output.
func flattenInts(out []any, n int) ([]int64, error) {
	items := out
	if len(out) == 1 {
		if list, err := toInt64List(out[0]); err == nil {
			items = make([]any, len(list))
			for i, v := range list {
				items[i] = v
			}
		}
	}
	if len(items) < n {
		return nil, fmt.Errorf("%w: want %d values, got %d", ErrBadResult, n, len(items))
	}
	values := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := toInt64(items[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

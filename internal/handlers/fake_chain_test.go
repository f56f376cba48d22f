package handlers

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"chaintetris/internal/chain"
)

var me = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// fakeChain is a single-room in-memory contract; every transaction mines one block.
type fakeChain struct {
	mu      sync.Mutex
	canSign bool
	block   uint64
	rooms   []uint64
	players []common.Address
	mine    chain.Shape
	loc     chain.Location
	score   chain.Score
	sent    []string
	piece   uint8
	failTx  error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		canSign: true,
		block:   10,
		rooms:   []uint64{1, 2},
		players: []common.Address{me},
		mine:    chain.Shape{{1, 1}},
	}
}

func (f *fakeChain) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeChain) Account() common.Address {
	return me
}

func (f *fakeChain) CanSign() bool {
	return f.canSign
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *fakeChain) ActiveRooms(ctx context.Context, block uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.rooms...), nil
}

func (f *fakeChain) Players(ctx context.Context, room uint64, block uint64) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Address(nil), f.players...), nil
}

func (f *fakeChain) Location(ctx context.Context, room uint64, block uint64) (chain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loc, nil
}

func (f *fakeChain) CurrentPiece(ctx context.Context, room uint64, block uint64) (chain.Shape, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mine.Clone(), nil
}

func (f *fakeChain) EnemyPiece(ctx context.Context, room uint64, block uint64) (chain.Shape, error) {
	return chain.Shape{{1}}, nil
}

func (f *fakeChain) Board(ctx context.Context, room uint64, block uint64) (chain.Grid, error) {
	return chain.Grid{{0, 0, 0}, {1, 0, 1}}, nil
}

func (f *fakeChain) Score(ctx context.Context, room uint64, block uint64) (chain.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.score, nil
}

func (f *fakeChain) Winner(ctx context.Context, room uint64, block uint64) (common.Address, error) {
	return common.Address{}, nil
}

func (f *fakeChain) tx(method string, mutate func()) (chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTx != nil {
		return chain.TxResult{Method: method}, f.failTx
	}
	f.block++
	f.sent = append(f.sent, method)
	if mutate != nil {
		mutate()
	}
	return chain.TxResult{Method: method, Block: f.block}, nil
}

func (f *fakeChain) CreateRoom(ctx context.Context) (chain.TxResult, error) {
	return f.tx("createRoom", func() { f.rooms = append(f.rooms, 3) })
}

func (f *fakeChain) JoinRoom(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("joinRoom", func() {
		for _, p := range f.players {
			if p == me {
				return
			}
		}
		f.players = append(f.players, me)
	})
}

func (f *fakeChain) StartGame(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("startGame", func() { f.mine = chain.Shape{{1, 1}} })
}

func (f *fakeChain) RestartGame(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("restartGame", nil)
}

func (f *fakeChain) MovePiece(ctx context.Context, room uint64, dx, dy int) (chain.TxResult, error) {
	return f.tx("movePiece", func() {
		f.loc.X += dx
		f.loc.Y += dy
	})
}

func (f *fakeChain) RotatePiece(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("rotatePiece", nil)
}

func (f *fakeChain) HardDropPiece(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("hardDropPiece", func() { f.score.Mine += 40 })
}

func (f *fakeChain) SelectNextPiece(ctx context.Context, room uint64, pieceType uint8) (chain.TxResult, error) {
	return f.tx("selectNextPiece", func() { f.piece = pieceType })
}

func (f *fakeChain) UpdateGame(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("updateGame", func() { f.loc.Y++ })
}

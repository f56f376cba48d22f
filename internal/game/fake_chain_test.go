package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"chaintetris/internal/chain"
)

var (
	me    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	rival = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// fakeChain is an in-memory contract; every transaction mines one block.
type fakeChain struct {
	mu       sync.Mutex
	canSign  bool
	block    uint64
	headLag  uint64
	rooms    []uint64
	players  []common.Address
	board    chain.Grid
	mine     chain.Shape
	enemy    chain.Shape
	loc      chain.Location
	score    chain.Score
	winner   common.Address
	sent     []string
	moves    [][2]int
	reads    map[string]int
	readAt   []uint64
	failRead error
	failTx   error

	// roomsEntered and roomsGate hold ActiveRooms mid-read when set.
	roomsEntered chan struct{}
	roomsGate    chan struct{}
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		canSign: true,
		block:   10,
		rooms:   []uint64{1, 2},
		players: []common.Address{me},
		board:   chain.Grid{{0, 0, 0, 0}, {0, 0, 0, 0}, {1, 1, 2, 1}},
		mine:    chain.Shape{{1, 1}},
		enemy:   chain.Shape{{1}},
		loc:     chain.Location{X: 0, Y: 0, EnemyX: 3, EnemyY: 1},
		reads:   make(map[string]int),
	}
}

func (f *fakeChain) read(name string, block uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[name]++
	f.readAt = append(f.readAt, block)
	return f.failRead
}

func (f *fakeChain) readCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[name]
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
	return f.block - f.headLag, nil
}

func (f *fakeChain) ActiveRooms(ctx context.Context, block uint64) ([]uint64, error) {
	if err := f.read("rooms", block); err != nil {
		return nil, err
	}
	f.mu.Lock()
	entered, gate := f.roomsEntered, f.roomsGate
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.rooms...), nil
}

func (f *fakeChain) Players(ctx context.Context, room uint64, block uint64) ([]common.Address, error) {
	if err := f.read("players", block); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Address(nil), f.players...), nil
}

func (f *fakeChain) Location(ctx context.Context, room uint64, block uint64) (chain.Location, error) {
	if err := f.read("location", block); err != nil {
		return chain.Location{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loc, nil
}

func (f *fakeChain) CurrentPiece(ctx context.Context, room uint64, block uint64) (chain.Shape, error) {
	if err := f.read("mine", block); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mine.Clone(), nil
}

func (f *fakeChain) EnemyPiece(ctx context.Context, room uint64, block uint64) (chain.Shape, error) {
	if err := f.read("enemy", block); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enemy.Clone(), nil
}

func (f *fakeChain) Board(ctx context.Context, room uint64, block uint64) (chain.Grid, error) {
	if err := f.read("board", block); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.board.Clone(), nil
}

func (f *fakeChain) Score(ctx context.Context, room uint64, block uint64) (chain.Score, error) {
	if err := f.read("score", block); err != nil {
		return chain.Score{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.score, nil
}

func (f *fakeChain) Winner(ctx context.Context, room uint64, block uint64) (common.Address, error) {
	if err := f.read("winner", block); err != nil {
		return common.Address{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.winner, nil
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
	return f.tx("createRoom", func() { f.rooms = append(f.rooms, uint64(len(f.rooms)+1)) })
}

func (f *fakeChain) JoinRoom(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("joinRoom", func() { f.players = append(f.players, rival) })
}

func (f *fakeChain) StartGame(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("startGame", nil)
}

func (f *fakeChain) RestartGame(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("restartGame", func() { f.winner = common.Address{} })
}

func (f *fakeChain) MovePiece(ctx context.Context, room uint64, dx, dy int) (chain.TxResult, error) {
	return f.tx("movePiece", func() {
		f.moves = append(f.moves, [2]int{dx, dy})
		f.loc.X += dx
		f.loc.Y += dy
	})
}

func (f *fakeChain) RotatePiece(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("rotatePiece", func() { f.mine = chain.Shape{{1}, {1}} })
}

func (f *fakeChain) HardDropPiece(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("hardDropPiece", func() { f.score.Mine += 100 })
}

func (f *fakeChain) SelectNextPiece(ctx context.Context, room uint64, pieceType uint8) (chain.TxResult, error) {
	return f.tx("selectNextPiece", nil)
}

func (f *fakeChain) UpdateGame(ctx context.Context, room uint64) (chain.TxResult, error) {
	return f.tx("updateGame", func() { f.loc.Y++ })
}

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package game

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaintetris/internal/chain"
)

func newTestStore(t *testing.T, f *fakeChain, opts Options) *Store {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStore(ctx, f, opts, quietLogger(), nil)
	t.Cleanup(func() {
		s.Close()
		cancel()
	})
	return s
}

func waitApplied(t *testing.T, s *Store, id uint64, part Part, block uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		room, ok := s.Lookup(id)
		return ok && room.AppliedBlock(part) >= block
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_RoomLoadsEveryPart(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, DefaultOptions())

	s.Room(1)
	for _, p := range partOrder {
		waitApplied(t, s, 1, p, 10)
	}

	snap := s.Snapshot(1)
	assert.Equal(t, StatusInProgress, snap.Status, "a live piece implies a running match")
	assert.True(t, snap.Joined)
	assert.Equal(t, "🟦 🟦 ⬜ ⬜\n⬜ ⬜ ⬜ 🟥\n⬛ ⬛ 🔴 ⬛", snap.Display.String())
	assert.Equal(t, uint64(10), snap.Block)
}

func TestStore_ViewReadsArePinnedToOneBlock(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartView, 10)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.readAt {
		assert.Equal(t, uint64(10), b)
	}
}

func TestStore_MoveRefreshesFromReceiptBlock(t *testing.T) {
	f := newFakeChain()
	f.headLag = 5
	s := newTestStore(t, f, DefaultOptions())

	res, err := s.Move(context.Background(), 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), res.Block)
	assert.Equal(t, []string{"movePiece"}, f.sentMethods())

	room, ok := s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, uint64(11), room.AppliedBlock(PartView), "a lagging head must not hide the receipt's state")
	assert.Equal(t, 1, s.Snapshot(1).Location.X)

	// The loop's initial refresh reads at the lagging head and must not win.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.Snapshot(1).Location.X)
	assert.Equal(t, uint64(11), room.AppliedBlock(PartView))
}

func TestStore_MoveRejectsInvalidSteps(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, DefaultOptions())

	for _, step := range [][2]int{{0, 0}, {2, 0}, {0, -2}} {
		_, err := s.Move(context.Background(), 1, step[0], step[1])
		assert.ErrorIs(t, err, ErrInvalidMove)
	}
	assert.Empty(t, f.sentMethods())
}

func TestStore_ReadOnly(t *testing.T) {
	f := newFakeChain()
	f.canSign = false
	s := newTestStore(t, f, DefaultOptions())

	_, err := s.CreateRoom(context.Background())
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.Rotate(context.Background(), 1)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.Start(context.Background(), 1)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Empty(t, f.sentMethods())
	assert.False(t, s.CanSign())
}

func TestStore_TxErrorIsReturned(t *testing.T) {
	f := newFakeChain()
	f.failTx = errBoom
	s := newTestStore(t, f, DefaultOptions())

	_, err := s.HardDrop(context.Background(), 1)
	assert.ErrorIs(t, err, errBoom)
}

func TestStore_ActionsPublishChangedFragments(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})
	sub := s.Broadcaster(1).Subscribe()
	defer s.Broadcaster(1).Unsubscribe(sub)

	_, err := s.Start(context.Background(), 1)
	require.NoError(t, err)

	got := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !(got["status"] && got["board"] && got["scores"] && got["players"]) {
		select {
		case ev := <-sub:
			got[ev] = true
		case <-deadline:
			t.Fatalf("missing fragment events, got %v", got)
		}
	}
	assert.Equal(t, StatusInProgress, s.Snapshot(1).Status)
}

func TestStore_HardDropRefreshesScore(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})

	_, err := s.HardDrop(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), s.Snapshot(1).Score.Mine)
}

func TestStore_SelectPieceSendsType(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})

	_, err := s.SelectPiece(context.Background(), 1, PieceZ)
	require.NoError(t, err)
	assert.Equal(t, []string{"selectNextPiece"}, f.sentMethods())
}

func TestStore_GameOverEventFinishesRoom(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartStatus, 10)

	f.mu.Lock()
	f.block = 12
	f.winner = rival
	f.mu.Unlock()

	s.HandleEvent(chain.Event{Name: chain.EventGameOver, RoomID: 1, Player: rival, Block: 12})
	assert.Equal(t, StatusFinished, s.Snapshot(1).Status, "status applies without waiting for reads")

	require.Eventually(t, func() bool {
		return s.Snapshot(1).Winner == rival
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, s.Snapshot(1).Won())
}

func TestStore_RestartClearsWinner(t *testing.T) {
	f := newFakeChain()
	f.winner = rival
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartStatus, 10)
	require.Equal(t, StatusFinished, s.Snapshot(1).Status)

	_, err := s.Restart(context.Background(), 1)
	require.NoError(t, err)
	snap := s.Snapshot(1)
	assert.Equal(t, StatusInProgress, snap.Status)
	assert.Equal(t, common.Address{}, snap.Winner)
}

func TestStore_RunAppliesMoveEvents(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartView, 10)

	f.mu.Lock()
	f.block = 11
	f.loc.EnemyX = 2
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan chain.Event, 1)
	go s.Run(ctx, events)
	events <- chain.Event{Name: chain.EventPieceMoved, RoomID: 1, Player: rival, Block: 11}

	require.Eventually(t, func() bool {
		return s.Snapshot(1).Location.EnemyX == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_EventForUnwatchedRoomIsIgnored(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})

	s.HandleEvent(chain.Event{Name: chain.EventPieceMoved, RoomID: 7, Block: 11})
	_, ok := s.Lookup(7)
	assert.False(t, ok)
}

func TestStore_ActiveRoomsCached(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, DefaultOptions())
	ctx := context.Background()

	rooms, err := s.ActiveRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, rooms)
	_, err = s.ActiveRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.readCount("rooms"))

	_, err = s.CreateRoom(ctx)
	require.NoError(t, err)
	rooms, err = s.ActiveRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, rooms)
	assert.Equal(t, 2, f.readCount("rooms"))
}

func TestStore_ActiveRoomsError(t *testing.T) {
	f := newFakeChain()
	f.failRead = errBoom
	s := newTestStore(t, f, DefaultOptions())

	_, err := s.ActiveRooms(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestStore_FailedRefreshKeepsState(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartView, 10)

	f.mu.Lock()
	f.failRead = errBoom
	f.block = 20
	f.mu.Unlock()

	s.Refresh(context.Background(), 1, PartAll)
	room, _ := s.Lookup(1)
	assert.Equal(t, uint64(10), room.AppliedBlock(PartView))
	assert.False(t, s.Snapshot(1).Display.Empty())
}

func TestStore_AutoTickSendsGravity(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{AutoTick: true, TickInterval: 10 * time.Millisecond})
	s.Room(1)

	require.Eventually(t, func() bool {
		for _, m := range f.sentMethods() {
			if m == "updateGame" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return s.Snapshot(1).Location.Y > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_NoAutoTickWhileLobby(t *testing.T) {
	f := newFakeChain()
	f.mine = chain.Shape{{0}}
	s := newTestStore(t, f, Options{AutoTick: true, TickInterval: 5 * time.Millisecond})
	s.Room(1)
	waitApplied(t, s, 1, PartView, 10)

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, f.sentMethods())
}

func TestStore_ResyncAllRefreshesWatchedRooms(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartScore, 10)

	f.mu.Lock()
	f.block = 15
	f.score.Enemy = 7
	f.mu.Unlock()

	s.ResyncAll()
	require.Eventually(t, func() bool {
		return s.Snapshot(1).Score.Enemy == 7
	}, 2*time.Second, 5*time.Millisecond)
}

func drain(ch chan string) map[string]bool {
	got := map[string]bool{}
	for {
		select {
		case ev := <-ch:
			got[ev] = true
		default:
			return got
		}
	}
}

func TestStore_JoinRepublishesStatus(t *testing.T) {
	f := newFakeChain()
	f.players = nil
	f.mine = chain.Shape{{0}}
	s := newTestStore(t, f, Options{})
	s.Room(1)
	for _, p := range partOrder {
		waitApplied(t, s, 1, p, 10)
	}
	sub := s.Broadcaster(1).Subscribe()
	defer s.Broadcaster(1).Unsubscribe(sub)

	f.mu.Lock()
	f.players = []common.Address{me}
	f.mu.Unlock()
	_, err := s.Join(context.Background(), 1)
	require.NoError(t, err)

	got := drain(sub)
	assert.True(t, got["players"])
	assert.True(t, got["status"], "start control depends on membership")
	assert.True(t, s.Snapshot(1).Joined)
}

func TestStore_InferredStartRepublishesStatus(t *testing.T) {
	f := newFakeChain()
	f.mine = chain.Shape{{0}}
	s := newTestStore(t, f, Options{})
	s.Room(1)
	waitApplied(t, s, 1, PartView, 10)
	require.Equal(t, StatusLobby, s.Snapshot(1).Status)

	sub := s.Broadcaster(1).Subscribe()
	defer s.Broadcaster(1).Unsubscribe(sub)
	f.mu.Lock()
	f.block = 11
	f.mine = chain.Shape{{1}}
	f.mu.Unlock()

	room, _ := s.Lookup(1)
	events := s.refresh(context.Background(), room, PartView, 0)
	assert.ElementsMatch(t, []string{"board", "status"}, events)
	assert.Equal(t, StatusInProgress, s.Snapshot(1).Status)
}

func TestStore_ActiveRoomsSurvivesCancelledCaller(t *testing.T) {
	f := newFakeChain()
	f.roomsEntered = make(chan struct{}, 1)
	f.roomsGate = make(chan struct{})
	s := newTestStore(t, f, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.ActiveRooms(ctx)
		first <- err
	}()
	<-f.roomsEntered

	type result struct {
		rooms []uint64
		err   error
	}
	second := make(chan result, 1)
	go func() {
		rooms, err := s.ActiveRooms(context.Background())
		second <- result{rooms, err}
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(f.roomsGate)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []uint64{1, 2}, res.rooms)
}

func TestStore_IdleRoomIsUnwatched(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{IdleTimeout: 20 * time.Millisecond})
	s.Room(1)

	require.Eventually(t, func() bool {
		_, ok := s.Lookup(1)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Watching())

	s.Room(1)
	assert.Equal(t, 1, s.Watching(), "a later request watches the room again")
}

func TestStore_StreamKeepsRoomWatched(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{IdleTimeout: 20 * time.Millisecond})
	hub := s.Broadcaster(1)
	sub := hub.Subscribe()
	s.Room(1)
	waitApplied(t, s, 1, PartView, 10)

	time.Sleep(80 * time.Millisecond)
	_, ok := s.Lookup(1)
	require.True(t, ok, "room with a stream stays watched")

	hub.Unsubscribe(sub)
	s.r.Wake(roomKey(1))
	require.Eventually(t, func() bool {
		_, ok := s.Lookup(1)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_MaxRoomsEvictsLeastRecent(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, Options{MaxRooms: 2})

	s.Room(1)
	s.Room(2)
	s.Room(1)
	s.Room(3)

	_, ok := s.Lookup(2)
	assert.False(t, ok, "least recently used room is evicted")
	_, ok = s.Lookup(1)
	assert.True(t, ok)
	_, ok = s.Lookup(3)
	assert.True(t, ok)

	for id := uint64(10); id < 60; id++ {
		s.Snapshot(id)
	}
	assert.LessOrEqual(t, s.Watching(), 2)
}

func TestStore_ForgetEndsStreams(t *testing.T) {
	f := newFakeChain()
	s := newTestStore(t, f, DefaultOptions())
	s.Room(1)
	sub := s.Broadcaster(1).Subscribe()

	s.Forget(1)
	_, open := <-sub
	assert.False(t, open)
	_, ok := s.Lookup(1)
	assert.False(t, ok)
}

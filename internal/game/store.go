package game

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"chaintetris/internal/chain"
	"chaintetris/internal/metrics"
	"chaintetris/pkg/realtime"
)

// Chain is the contract surface the store drives. *chain.Client implements it.
type Chain interface {
	Account() common.Address
	CanSign() bool
	BlockNumber(ctx context.Context) (uint64, error)

	ActiveRooms(ctx context.Context, block uint64) ([]uint64, error)
	Players(ctx context.Context, room uint64, block uint64) ([]common.Address, error)
	Location(ctx context.Context, room uint64, block uint64) (chain.Location, error)
	CurrentPiece(ctx context.Context, room uint64, block uint64) (chain.Shape, error)
	EnemyPiece(ctx context.Context, room uint64, block uint64) (chain.Shape, error)
	Board(ctx context.Context, room uint64, block uint64) (chain.Grid, error)
	Score(ctx context.Context, room uint64, block uint64) (chain.Score, error)
	Winner(ctx context.Context, room uint64, block uint64) (common.Address, error)

	CreateRoom(ctx context.Context) (chain.TxResult, error)
	JoinRoom(ctx context.Context, room uint64) (chain.TxResult, error)
	StartGame(ctx context.Context, room uint64) (chain.TxResult, error)
	RestartGame(ctx context.Context, room uint64) (chain.TxResult, error)
	MovePiece(ctx context.Context, room uint64, dx, dy int) (chain.TxResult, error)
	RotatePiece(ctx context.Context, room uint64) (chain.TxResult, error)
	HardDropPiece(ctx context.Context, room uint64) (chain.TxResult, error)
	SelectNextPiece(ctx context.Context, room uint64, pieceType uint8) (chain.TxResult, error)
	UpdateGame(ctx context.Context, room uint64) (chain.TxResult, error)
}

// Options tune the refresh loop.
type Options struct {
	// ResyncInterval re-reads every part of a watched room; zero disables it.
	ResyncInterval time.Duration
	// TickInterval is the gravity period used when AutoTick is set.
	TickInterval time.Duration
	AutoTick     bool
	// RoomListTTL caches the active room list.
	RoomListTTL time.Duration
	// IdleTimeout stops watching a room once no stream has been attached for
	// this long; zero keeps rooms until Forget.
	IdleTimeout time.Duration
	// MaxRooms caps watched rooms, evicting the least recently used; zero is unlimited.
	MaxRooms int
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		ResyncInterval: 30 * time.Second,
		TickInterval:   time.Second,
		RoomListTTL:    5 * time.Second,
		IdleTimeout:    2 * time.Minute,
		MaxRooms:       256,
	}
}

// Store mirrors watched rooms and delegates to realtime.RoomStore for loops and broadcast.
type Store struct {
	r       *realtime.RoomStore[*Room]
	chain   Chain
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
	base    context.Context
	watched *lru.Cache[uint64, struct{}]

	group  singleflight.Group
	listMu sync.Mutex
	list   []uint64
	listAt time.Time
}

// NewStore creates a store. Room loops run until ctx is cancelled or Close is called.
func NewStore(ctx context.Context, c Chain, opts Options, logger *slog.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		r:       realtime.NewRoomStore[*Room](),
		chain:   c,
		opts:    opts,
		log:     logger.With("component", "game"),
		metrics: m,
		base:    ctx,
	}
	if opts.MaxRooms > 0 {
		s.watched, _ = lru.NewWithEvict(opts.MaxRooms, func(id uint64, _ struct{}) {
			s.log.Debug("room evicted", "room", id)
			s.r.Remove(roomKey(id))
		})
	}
	m.WatchRooms(s.Watching)
	return s
}

func roomKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Account returns the address the store plays as.
func (s *Store) Account() common.Address {
	return s.chain.Account()
}

// CanSign reports whether actions can be sent.
func (s *Store) CanSign() bool {
	return s.chain.CanSign()
}

// Room returns the mirror for id, creating it and starting its refresh loop if needed.
func (s *Store) Room(id uint64) *Room {
	key := roomKey(id)
	entry, created := s.r.GetOrCreate(key, func() *Room { return NewRoom(id) })
	room := entry.State
	if created || !s.r.Running(key) {
		s.r.RunLoop(s.base, key, func() *Room { return room }, s.tick)
	}
	if s.watched != nil {
		s.watched.Add(id, struct{}{})
	}
	return room
}

// Watching returns how many rooms have a refresh loop.
func (s *Store) Watching() int {
	n := 0
	for _, key := range s.r.IDs() {
		if s.r.Running(key) {
			n++
		}
	}
	return n
}

// Lookup returns the mirror for id if it is being watched.
func (s *Store) Lookup(id uint64) (*Room, bool) {
	entry, ok := s.r.Get(roomKey(id))
	if !ok || entry.State == nil {
		return nil, false
	}
	return entry.State, true
}

// Snapshot returns the room as seen by the store's account.
func (s *Store) Snapshot(id uint64) Snapshot {
	return s.Room(id).Snapshot(s.chain.Account())
}

// Broadcaster returns the fragment broadcaster for a room.
func (s *Store) Broadcaster(id uint64) *realtime.Broadcaster {
	return s.r.Broadcaster(roomKey(id))
}

// Publish notifies subscribers of a room with a fragment event.
func (s *Store) Publish(id uint64, events ...string) {
	for _, e := range events {
		s.r.Publish(roomKey(id), e)
	}
}

// Forget stops watching a room and ends its streams.
func (s *Store) Forget(id uint64) {
	if s.watched == nil || !s.watched.Remove(id) {
		s.r.Remove(roomKey(id))
	}
}

// Close stops every refresh loop and ends every open stream.
func (s *Store) Close() {
	s.r.Shutdown()
}

// tick runs on the room's loop: refresh dirty parts, resync on schedule, drive gravity.
func (s *Store) tick(ctx context.Context, room *Room, now time.Time) (time.Time, []string, bool) {
	if room == nil {
		return time.Time{}, nil, true
	}
	parts := room.takeDirty()

	room.mu.Lock()
	room.resync.Every = s.opts.ResyncInterval
	if room.resync.Due(now) {
		parts |= PartAll
		room.resync.Mark(now)
	}
	resyncAt, _ := room.resync.NextWake(now)
	room.mu.Unlock()

	idleAt, idle := s.idle(room, now)
	if idle {
		s.log.Debug("room idle, unwatching", "room", room.ID)
		s.Forget(room.ID)
		return time.Time{}, nil, true
	}

	var events []string
	if parts != 0 {
		events = s.refresh(ctx, room, parts, 0)
	}

	gravityAt := s.maybeTick(ctx, room, now)
	return realtime.Earliest(now.Add(time.Minute), resyncAt, gravityAt, idleAt), events, false
}

// idle tracks how long the room has had no stream attached. It returns when
// the room would go idle, and true once it has.
func (s *Store) idle(room *Room, now time.Time) (time.Time, bool) {
	if s.opts.IdleTimeout <= 0 {
		return time.Time{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if s.r.Subscribers(roomKey(room.ID)) > 0 {
		room.idleSince = time.Time{}
		return time.Time{}, false
	}
	if room.idleSince.IsZero() {
		room.idleSince = now
	}
	deadline := room.idleSince.Add(s.opts.IdleTimeout)
	return deadline, !now.Before(deadline)
}

// maybeTick sends updateGame when auto gravity is on and the match runs.
// It returns when the next tick is due, or zero when gravity is idle.
func (s *Store) maybeTick(ctx context.Context, room *Room, now time.Time) time.Time {
	if !s.opts.AutoTick || !s.chain.CanSign() {
		return time.Time{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.gravity.Every = s.opts.TickInterval
	if room.Status != StatusInProgress {
		room.gravity.Reset()
		return time.Time{}
	}
	if room.ticking {
		return now.Add(room.gravity.Every)
	}
	if room.gravity.Due(now) {
		room.gravity.Mark(now)
		room.ticking = true
		go s.gravityStep(ctx, room)
	}
	next, _ := room.gravity.NextWake(now)
	return next
}

func (s *Store) gravityStep(ctx context.Context, room *Room) {
	defer func() {
		room.mu.Lock()
		room.ticking = false
		room.mu.Unlock()
	}()
	if _, err := s.chain.UpdateGame(ctx, room.ID); err != nil {
		s.log.Debug("gravity tick failed", "room", room.ID, "err", err)
		return
	}
	room.MarkDirty(PartView | PartScore | PartStatus)
	s.r.Wake(roomKey(room.ID))
}

// refresh reads parts pinned to one block (at least minBlock) and applies them.
// It returns the fragment events for parts that changed.
func (s *Store) refresh(ctx context.Context, room *Room, parts Part, minBlock uint64) []string {
	block, err := s.chain.BlockNumber(ctx)
	if err != nil {
		s.log.Warn("refresh: block number failed", "room", room.ID, "err", err)
		for _, p := range partOrder {
			if parts&p != 0 {
				s.metrics.ObserveRefresh(p.String(), "error")
			}
		}
		return nil
	}
	if block < minBlock {
		block = minBlock
	}

	before := room.CurrentStatus()
	var (
		mu      sync.Mutex
		changed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range partOrder {
		if parts&p == 0 {
			continue
		}
		part := p
		g.Go(func() error {
			applied, err := s.refreshPart(gctx, room, part, block)
			outcome := "applied"
			switch {
			case err != nil:
				outcome = "error"
				s.log.Warn("refresh failed", "room", room.ID, "part", part.String(), "block", block, "err", err)
			case !applied:
				outcome = "stale"
				s.log.Debug("stale refresh dropped", "room", room.ID, "part", part.String(), "block", block)
			}
			s.metrics.ObserveRefresh(part.String(), outcome)
			if applied {
				mu.Lock()
				changed = append(changed, part.Fragment())
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	// The status fragment carries the join, start and play controls, which
	// depend on the players and on the status a view read may have inferred.
	if room.CurrentStatus() != before || slices.Contains(changed, PartPlayers.Fragment()) {
		if !slices.Contains(changed, PartStatus.Fragment()) {
			changed = append(changed, PartStatus.Fragment())
		}
	}
	return changed
}

func (s *Store) refreshPart(ctx context.Context, room *Room, part Part, block uint64) (bool, error) {
	id := room.ID
	switch part {
	case PartPlayers:
		players, err := s.chain.Players(ctx, id, block)
		if err != nil {
			return false, err
		}
		return room.applyPlayers(block, players), nil
	case PartView:
		view, err := s.readView(ctx, id, block)
		if err != nil {
			return false, err
		}
		return room.applyView(block, view), nil
	case PartScore:
		score, err := s.chain.Score(ctx, id, block)
		if err != nil {
			return false, err
		}
		return room.applyScore(block, score), nil
	case PartStatus:
		winner, err := s.chain.Winner(ctx, id, block)
		if err != nil {
			return false, err
		}
		return room.applyWinner(block, winner), nil
	}
	return false, nil
}

// readView fetches the board, both pieces and the location at the same block.
func (s *Store) readView(ctx context.Context, id uint64, block uint64) (View, error) {
	var v View
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v.Board, err = s.chain.Board(gctx, id, block)
		return err
	})
	g.Go(func() (err error) {
		v.Mine, err = s.chain.CurrentPiece(gctx, id, block)
		return err
	})
	g.Go(func() (err error) {
		v.Enemy, err = s.chain.EnemyPiece(gctx, id, block)
		return err
	})
	g.Go(func() (err error) {
		v.Location, err = s.chain.Location(gctx, id, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}
	return v, nil
}

// Refresh reads parts now and publishes what changed.
func (s *Store) Refresh(ctx context.Context, id uint64, parts Part) {
	s.refreshAndPublish(ctx, s.Room(id), parts, 0)
}

func (s *Store) refreshAndPublish(ctx context.Context, room *Room, parts Part, minBlock uint64) {
	events := s.refresh(ctx, room, parts, minBlock)
	s.Publish(room.ID, events...)
}

// ActiveRooms returns the contract's open rooms, shared between concurrent
// callers and cached for RoomListTTL.
func (s *Store) ActiveRooms(ctx context.Context) ([]uint64, error) {
	s.listMu.Lock()
	if s.list != nil && time.Since(s.listAt) < s.opts.RoomListTTL {
		out := append([]uint64(nil), s.list...)
		s.listMu.Unlock()
		return out, nil
	}
	s.listMu.Unlock()

	// The shared read outlives any one caller; each caller still honours its own ctx.
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan("rooms", func() (any, error) {
		rooms, err := s.chain.ActiveRooms(flight, 0)
		if err != nil {
			return nil, err
		}
		s.listMu.Lock()
		s.list = rooms
		s.listAt = time.Now()
		s.listMu.Unlock()
		return rooms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]uint64(nil), res.Val.([]uint64)...), nil
	}
}

func (s *Store) invalidateRooms() {
	s.listMu.Lock()
	s.list = nil
	s.listMu.Unlock()
}

package realtime

import (
	"context"
	"sync"
	"time"
)

// Room holds state and a broadcaster for one room.
type Room[T any] struct {
	ID    string
	State T
	hub   *Broadcaster
	ready bool
}

// RoomStore manages rooms, their broadcasters and their background loops.
type RoomStore[T any] struct {
	mu    sync.RWMutex
	rooms map[string]*Room[T]
	loops map[string]context.CancelFunc
	wakes map[string]chan struct{}
}

// NewRoomStore creates an empty room store.
func NewRoomStore[T any]() *RoomStore[T] {
	return &RoomStore[T]{
		rooms: make(map[string]*Room[T]),
		loops: make(map[string]context.CancelFunc),
		wakes: make(map[string]chan struct{}),
	}
}

// GetOrCreate returns the room by ID, creating its state with init() if missing.
// A room that so far only had a broadcaster keeps it.
func (s *RoomStore[T]) GetOrCreate(id string, init func() T) (*Room[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if ok && r.ready {
		return r, false
	}
	if !ok {
		r = &Room[T]{ID: id}
		s.rooms[id] = r
	}
	if r.hub == nil {
		r.hub = NewBroadcaster()
	}
	r.State = init()
	r.ready = true
	return r, true
}

// Get returns the room by ID if it exists.
func (s *RoomStore[T]) Get(id string) (*Room[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// IDs returns the ids of all known rooms.
func (s *RoomStore[T]) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// Subscribers returns how many streams are attached to the room's broadcaster.
func (s *RoomStore[T]) Subscribers(id string) int {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok || r.hub == nil {
		return 0
	}
	return r.hub.Len()
}

// Publish notifies subscribers of the room's broadcaster. Unknown rooms are skipped.
func (s *RoomStore[T]) Publish(id string, event string) {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok || r.hub == nil {
		return
	}
	r.hub.Publish(event)
}

// Broadcaster returns the broadcaster for the room, creating it if the room exists but had none.
func (s *RoomStore[T]) Broadcaster(id string) *Broadcaster {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		hub := NewBroadcaster()
		s.rooms[id] = &Room[T]{ID: id, hub: hub}
		return hub
	}
	if r.hub == nil {
		r.hub = NewBroadcaster()
	}
	return r.hub
}

// TickFunc is called by RunLoop to determine the next wake time and events to publish.
// stop true means exit the loop.
type TickFunc[T any] func(ctx context.Context, state T, now time.Time) (next time.Time, events []string, stop bool)

// RunLoop starts a loop for the room. If a loop already exists for id, it is not started again.
// The loop ends when tick asks to stop, when parent is cancelled, or on Stop.
func (s *RoomStore[T]) RunLoop(parent context.Context, id string, getState func() T, tick TickFunc[T]) {
	s.mu.Lock()
	if _, ok := s.loops[id]; ok {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	wake := make(chan struct{}, 1)
	s.loops[id] = cancel
	s.wakes[id] = wake
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			if s.wakes[id] == wake {
				delete(s.loops, id)
				delete(s.wakes, id)
			}
			s.mu.Unlock()
		}()

		for {
			if ctx.Err() != nil {
				return
			}
			state := getState()
			now := time.Now().UTC()
			next, events, stop := tick(ctx, state, now)
			if stop || ctx.Err() != nil {
				return
			}
			for _, e := range events {
				s.Publish(id, e)
			}
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case <-wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
		}
	}()
}

// Running reports whether a loop is active for the room.
func (s *RoomStore[T]) Running(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loops[id]
	return ok
}

// Wake unblocks the room's loop so it recomputes immediately.
func (s *RoomStore[T]) Wake(id string) {
	s.mu.RLock()
	wake, ok := s.wakes[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// Stop cancels the room's loop if one is running.
func (s *RoomStore[T]) Stop(id string) {
	s.mu.Lock()
	cancel, ok := s.loops[id]
	if ok {
		delete(s.loops, id)
		delete(s.wakes, id)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Remove stops the room's loop, forgets the room and closes its broadcaster.
// A later GetOrCreate or Broadcaster call starts the room afresh.
func (s *RoomStore[T]) Remove(id string) {
	s.Stop(id)
	s.mu.Lock()
	r, ok := s.rooms[id]
	delete(s.rooms, id)
	s.mu.Unlock()
	if ok && r.hub != nil {
		r.hub.Close()
	}
}

// StopAll cancels every running loop.
func (s *RoomStore[T]) StopAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.loops))
	for id, cancel := range s.loops {
		cancels = append(cancels, cancel)
		delete(s.loops, id)
		delete(s.wakes, id)
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Shutdown stops every loop and closes every broadcaster, ending open streams.
func (s *RoomStore[T]) Shutdown() {
	s.StopAll()
	s.mu.RLock()
	hubs := make([]*Broadcaster, 0, len(s.rooms))
	for _, room := range s.rooms {
		if room.hub != nil {
			hubs = append(hubs, room.hub)
		}
	}
	s.mu.RUnlock()
	for _, hub := range hubs {
		hub.Close()
	}
}

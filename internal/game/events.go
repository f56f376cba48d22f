package game

import (
	"context"

	"chaintetris/internal/chain"
)

// eventParts maps a contract event to the parts it invalidates.
var eventParts = map[string]Part{
	chain.EventPlayerJoined: PartPlayers,
	chain.EventGameStarted:  PartView | PartPlayers | PartScore,
	chain.EventGameOver:     PartStatus | PartScore | PartView,
	chain.EventPieceMoved:   PartView,
	chain.EventPieceRotated: PartView,
	chain.EventLineCleared:  PartScore | PartView,
}

// PartsFor returns the parts an event invalidates.
func PartsFor(name string) Part {
	return eventParts[name]
}

// HandleEvent folds a contract event into the watched room: status changes are
// applied at once, everything else is marked dirty for the room's loop.
func (s *Store) HandleEvent(ev chain.Event) {
	if ev.Name == chain.EventPlayerJoined || ev.Name == chain.EventGameOver {
		s.invalidateRooms()
	}
	room, ok := s.Lookup(ev.RoomID)
	if !ok {
		s.log.Debug("event for unwatched room", "event", ev.Name, "room", ev.RoomID)
		return
	}
	s.log.Debug("contract event", "event", ev.Name, "room", ev.RoomID, "player", ev.Player.Hex(), "block", ev.Block)

	var statusChanged bool
	switch ev.Name {
	case chain.EventGameStarted:
		statusChanged = room.setStatus(ev.Block, StatusInProgress)
	case chain.EventGameOver:
		statusChanged = room.setStatus(ev.Block, StatusFinished)
	}
	if statusChanged {
		s.Publish(ev.RoomID, PartStatus.Fragment())
	}

	parts := PartsFor(ev.Name)
	if parts == 0 {
		return
	}
	room.MarkDirty(parts)
	s.r.Wake(roomKey(ev.RoomID))
}

// Run consumes events until the channel closes or ctx is cancelled.
func (s *Store) Run(ctx context.Context, events <-chan chain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ev)
		}
	}
}

// ResyncAll schedules a full refresh of every watched room, e.g. after the event
// stream reconnects and events may have been missed.
func (s *Store) ResyncAll() {
	for _, key := range s.r.IDs() {
		entry, ok := s.r.Get(key)
		if !ok || entry.State == nil {
			continue
		}
		entry.State.MarkDirty(PartAll)
		s.r.Wake(key)
	}
}

package game

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"chaintetris/internal/chain"
	"chaintetris/pkg/realtime"
)

// Status is the client's view of where a room's match is.
type Status string

const (
	StatusLobby      Status = "lobby"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Part is a group of contract reads refreshed together.
type Part uint8

const (
	PartPlayers Part = 1 << iota
	PartView
	PartScore
	PartStatus

	PartAll = PartPlayers | PartView | PartScore | PartStatus
)

var partOrder = []Part{PartPlayers, PartView, PartScore, PartStatus}

// String names the part for logs and metrics.
func (p Part) String() string {
	switch p {
	case PartPlayers:
		return "players"
	case PartView:
		return "view"
	case PartScore:
		return "score"
	case PartStatus:
		return "status"
	}
	names := make([]string, 0, len(partOrder))
	for _, single := range partOrder {
		if p&single != 0 {
			names = append(names, single.String())
		}
	}
	return strings.Join(names, "|")
}

// Fragment is the broadcaster event published when the part changes.
func (p Part) Fragment() string {
	switch p {
	case PartPlayers:
		return "players"
	case PartView:
		return "board"
	case PartScore:
		return "scores"
	default:
		return "status"
	}
}

// View is the board and both pieces as read at one block.
type View struct {
	Board    chain.Grid
	Mine     chain.Shape
	Enemy    chain.Shape
	Location chain.Location
}

// Room mirrors one contract room. Every part remembers the block it was read
// at; results from older blocks are discarded.
type Room struct {
	mu        sync.Mutex
	ID        uint64
	Status    Status
	Players   []common.Address
	View      View
	Score     chain.Score
	Winner    common.Address
	UpdatedAt time.Time

	applied map[Part]uint64
	dirty   Part
	resync  realtime.Interval
	gravity realtime.Interval
	ticking bool
	// idleSince is when the room last had no stream attached.
	idleSince time.Time
}

// NewRoom returns an empty lobby room that needs a full refresh.
func NewRoom(id uint64) *Room {
	return &Room{
		ID:      id,
		Status:  StatusLobby,
		applied: make(map[Part]uint64),
		dirty:   PartAll,
	}
}

// MarkDirty schedules parts for the next refresh.
func (r *Room) MarkDirty(parts Part) {
	r.mu.Lock()
	r.dirty |= parts
	r.mu.Unlock()
}

func (r *Room) takeDirty() Part {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := r.dirty
	r.dirty = 0
	return parts
}

// acceptLocked reports whether a result read at block may replace the part, and records it.
func (r *Room) acceptLocked(part Part, block uint64) bool {
	if block < r.applied[part] {
		return false
	}
	r.applied[part] = block
	r.UpdatedAt = time.Now().UTC()
	return true
}

// AppliedBlock returns the block the part was last read at.
func (r *Room) AppliedBlock(part Part) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied[part]
}

func (r *Room) applyPlayers(block uint64, players []common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptLocked(PartPlayers, block) {
		return false
	}
	r.Players = append([]common.Address(nil), players...)
	return true
}

func (r *Room) applyView(block uint64, v View) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptLocked(PartView, block) {
		return false
	}
	r.View = View{
		Board:    v.Board.Clone(),
		Mine:     v.Mine.Clone(),
		Enemy:    v.Enemy.Clone(),
		Location: v.Location,
	}
	// A page opened mid-match has missed GameStarted; a live piece means the game runs.
	if r.Status == StatusLobby && hasCells(v.Mine) && block >= r.applied[PartStatus] {
		r.Status = StatusInProgress
	}
	return true
}

func (r *Room) applyScore(block uint64, score chain.Score) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptLocked(PartScore, block) {
		return false
	}
	r.Score = score
	return true
}

// applyWinner records the winner read from the contract. A winner ends the match;
// the zero address leaves the status to events and actions.
func (r *Room) applyWinner(block uint64, winner common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptLocked(PartStatus, block) {
		return false
	}
	r.Winner = winner
	if winner != (common.Address{}) {
		r.Status = StatusFinished
	}
	return true
}

// setStatus applies a status learned from an event or a mined action at block.
func (r *Room) setStatus(block uint64, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptLocked(PartStatus, block) {
		return false
	}
	if status == StatusInProgress {
		r.Winner = common.Address{}
	}
	r.Status = status
	return true
}

// CurrentStatus returns the room's status.
func (r *Room) CurrentStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

// InProgress reports whether the match is running.
func (r *Room) InProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status == StatusInProgress
}

func hasCells(s chain.Shape) bool {
	for _, row := range s {
		for _, v := range row {
			if v == chain.CellFilled {
				return true
			}
		}
	}
	return false
}

// Snapshot captures the state needed for rendering.
type Snapshot struct {
	ID        uint64
	Status    Status
	Account   common.Address
	Players   []common.Address
	Joined    bool
	Location  chain.Location
	Score     chain.Score
	Winner    common.Address
	Display   Display
	Block     uint64
	UpdatedAt time.Time
}

// Started mirrors the "game started" flag.
func (s Snapshot) Started() bool {
	return s.Status == StatusInProgress
}

// HasWinner reports whether the contract named a winner.
func (s Snapshot) HasWinner() bool {
	return s.Winner != (common.Address{})
}

// Won reports whether the account won.
func (s Snapshot) Won() bool {
	return s.HasWinner() && s.Winner == s.Account
}

// Snapshot returns a consistent copy of the room as seen by account.
func (r *Room) Snapshot(account common.Address) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := false
	for _, p := range r.Players {
		if p == account {
			joined = true
			break
		}
	}
	return Snapshot{
		ID:        r.ID,
		Status:    r.Status,
		Account:   account,
		Players:   append([]common.Address(nil), r.Players...),
		Joined:    joined,
		Location:  r.View.Location,
		Score:     r.Score,
		Winner:    r.Winner,
		Display:   Compose(r.View.Board, r.View.Location, r.View.Mine, r.View.Enemy),
		Block:     r.applied[PartView],
		UpdatedAt: r.UpdatedAt,
	}
}

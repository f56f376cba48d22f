package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"chaintetris/internal/chain"
	"chaintetris/internal/game"
	"chaintetris/internal/metrics"
	"chaintetris/internal/platform/ratelimiter"
	"chaintetris/internal/viewmodel"
	"chaintetris/views/components"
	"chaintetris/views/pages"
)

const keepAliveInterval = 25 * time.Second

type RoomHandler struct {
	store   *game.Store
	limiter *ratelimiter.ViewerLimiter
	metrics *metrics.Metrics
	baseURL string
	log     *slog.Logger
}

func NewRoomHandler(store *game.Store, limiter *ratelimiter.ViewerLimiter, m *metrics.Metrics, baseURL string, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{
		store:   store,
		limiter: limiter,
		metrics: m,
		baseURL: baseURL,
		log:     logger.With("component", "room"),
	}
}

type roomIDKey struct{}

func (h *RoomHandler) RegisterRoutes(r chi.Router) {
	r.Route("/room/{id}", func(r chi.Router) {
		r.Use(roomID)
		r.Get("/", h.roomPage)
		r.Get("/board", h.boardFragment)
		r.Get("/players", h.playersFragment)
		r.Get("/scores", h.scoresFragment)
		r.Get("/status", h.statusFragment)
		r.Get("/state", h.state)
		r.Get("/stream", h.stream)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(h.limiter, h.metrics))
			r.Post("/join", h.action("joinRoom", func(ctx context.Context, id uint64, _ *http.Request) (chain.TxResult, error) {
				return h.store.Join(ctx, id)
			}))
			r.Post("/start", h.action("startGame", func(ctx context.Context, id uint64, _ *http.Request) (chain.TxResult, error) {
				return h.store.Start(ctx, id)
			}))
			r.Post("/restart", h.action("restartGame", func(ctx context.Context, id uint64, _ *http.Request) (chain.TxResult, error) {
				return h.store.Restart(ctx, id)
			}))
			r.Post("/rotate", h.action("rotatePiece", func(ctx context.Context, id uint64, _ *http.Request) (chain.TxResult, error) {
				return h.store.Rotate(ctx, id)
			}))
			r.Post("/drop", h.action("hardDropPiece", func(ctx context.Context, id uint64, _ *http.Request) (chain.TxResult, error) {
				return h.store.HardDrop(ctx, id)
			}))
			r.Post("/update", h.action("updateGame", func(ctx context.Context, id uint64, _ *http.Request) (chain.TxResult, error) {
				return h.store.Tick(ctx, id)
			}))
			r.Post("/move", h.action("movePiece", h.move))
			r.Post("/select", h.action("selectNextPiece", h.selectPiece))
		})
	})
}

// roomID parses the {id} URL param; anything but a non-negative integer is not a room.
func roomID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseRoomID(chi.URLParam(r, "id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roomIDKey{}, id)))
	})
}

func roomIDFrom(r *http.Request) uint64 {
	id, _ := r.Context().Value(roomIDKey{}).(uint64)
	return id
}

func (h *RoomHandler) roomPage(w http.ResponseWriter, r *http.Request) {
	id := roomIDFrom(r)
	snap := h.store.Snapshot(id)
	canSign := h.store.CanSign()
	data := viewmodel.RoomPage{
		Title:     "Room " + strconv.FormatUint(id, 10) + " · Chain Tetris",
		RoomID:    id,
		InviteURL: buildInviteURL(r, h.baseURL, id),
		Account:   snap.Account.Hex(),
		Board:     toBoard(snap),
		Players:   toPlayers(snap, canSign),
		Scores:    toScores(snap),
		Status:    toStatus(snap, canSign),
	}
	render(w, r, pages.RoomPage(data))
}

func (h *RoomHandler) boardFragment(w http.ResponseWriter, r *http.Request) {
	render(w, r, components.BoardFragment(toBoard(h.store.Snapshot(roomIDFrom(r)))))
}

func (h *RoomHandler) playersFragment(w http.ResponseWriter, r *http.Request) {
	render(w, r, components.PlayersFragment(toPlayers(h.store.Snapshot(roomIDFrom(r)), h.store.CanSign())))
}

func (h *RoomHandler) scoresFragment(w http.ResponseWriter, r *http.Request) {
	render(w, r, components.ScoresFragment(toScores(h.store.Snapshot(roomIDFrom(r)))))
}

func (h *RoomHandler) statusFragment(w http.ResponseWriter, r *http.Request) {
	render(w, r, components.StatusFragment(toStatus(h.store.Snapshot(roomIDFrom(r)), h.store.CanSign())))
}

func (h *RoomHandler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, toState(h.store.Snapshot(roomIDFrom(r))))
}

type actionFunc func(ctx context.Context, id uint64, r *http.Request) (chain.TxResult, error)

// badRequest marks form errors so they map to 400.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (h *RoomHandler) action(name string, do actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := roomIDFrom(r)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		res, err := do(r.Context(), id, r)
		if err != nil {
			var br badRequest
			if errors.As(err, &br) {
				http.Error(w, br.msg, http.StatusBadRequest)
				return
			}
			fail(w, r, h.log, name, err)
			return
		}
		h.log.Info("action mined", "action", name, "room", id, "tx", res.Hash.Hex(), "block", res.Block, "gas", res.GasUsed)
		if isHTMX(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Redirect(w, r, roomURL(id), http.StatusSeeOther)
	}
}

func (h *RoomHandler) move(ctx context.Context, id uint64, r *http.Request) (chain.TxResult, error) {
	dx, errX := strconv.Atoi(r.FormValue("dx"))
	dy, errY := strconv.Atoi(r.FormValue("dy"))
	if errX != nil || errY != nil {
		return chain.TxResult{}, badRequest{"dx and dy must be integers"}
	}
	return h.store.Move(ctx, id, dx, dy)
}

func (h *RoomHandler) selectPiece(ctx context.Context, id uint64, r *http.Request) (chain.TxResult, error) {
	piece, ok := game.ParsePiece(r.FormValue("piece"))
	if !ok {
		return chain.TxResult{}, badRequest{"unknown piece"}
	}
	return h.store.SelectPiece(ctx, id, piece)
}

func (h *RoomHandler) stream(w http.ResponseWriter, r *http.Request) {
	id := roomIDFrom(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.store.Room(id)
	hub := h.store.Broadcaster(id)
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)
	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	send := func(fragments ...string) {
		snap := h.store.Snapshot(id)
		canSign := h.store.CanSign()
		for _, name := range fragments {
			switch name {
			case "board":
				writeSSE(w, name, renderToString(r, components.BoardFragment(toBoard(snap))))
			case "players":
				writeSSE(w, name, renderToString(r, components.PlayersFragment(toPlayers(snap, canSign))))
			case "scores":
				writeSSE(w, name, renderToString(r, components.ScoresFragment(toScores(snap))))
			case "status":
				writeSSE(w, name, renderToString(r, components.StatusFragment(toStatus(snap, canSign))))
			}
		}
		flusher.Flush()
	}

	send("status", "board", "scores", "players")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			send(event)
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"chaintetris/internal/game"
	"chaintetris/internal/viewmodel"
	"chaintetris/views/pages"
)

type HomeHandler struct {
	store   *game.Store
	chainID string
	log     *slog.Logger
}

func NewHomeHandler(store *game.Store, chainID string, logger *slog.Logger) *HomeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HomeHandler{store: store, chainID: chainID, log: logger.With("component", "home")}
}

func (h *HomeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Post("/rooms", h.createRoom)
	r.Post("/open", h.openRoom)
}

func (h *HomeHandler) home(w http.ResponseWriter, r *http.Request) {
	data := viewmodel.HomePage{
		Title:   "Chain Tetris",
		Account: h.store.Account().Hex(),
		ChainID: h.chainID,
		CanSign: h.store.CanSign(),
	}
	rooms, err := h.store.ActiveRooms(r.Context())
	if err != nil {
		h.log.Warn("list rooms failed", "err", err)
		data.Error = "Could not load the room list from the chain."
	}
	for _, id := range rooms {
		data.Rooms = append(data.Rooms, viewmodel.RoomLink{ID: id, URL: roomURL(id)})
	}
	render(w, r, pages.HomePage(data))
}

func (h *HomeHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.CreateRoom(r.Context())
	if err != nil {
		fail(w, r, h.log, "createRoom", err)
		return
	}
	h.log.Info("room created", "tx", res.Hash.Hex(), "block", res.Block)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *HomeHandler) openRoom(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	id, ok := parseRoomID(r.FormValue("room"))
	if !ok {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, roomURL(id), http.StatusSeeOther)
}

// parseRoomID accepts ids that fit the contract's signed call encoding.
func parseRoomID(value string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 63)
	if err != nil {
		return 0, false
	}
	return id, true
}

func roomURL(id uint64) string {
	return "/room/" + strconv.FormatUint(id, 10)
}

package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"chaintetris/internal/game"
	"chaintetris/internal/viewmodel"
)

var statusLabels = map[game.Status]string{
	game.StatusLobby:      "Waiting to start",
	game.StatusInProgress: "Game in progress",
	game.StatusFinished:   "Game over",
}

func shortAddress(a common.Address) string {
	hex := a.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

func toBoard(snap game.Snapshot) viewmodel.BoardFragment {
	rows := make([][]viewmodel.Cell, 0, len(snap.Display))
	for _, row := range snap.Display {
		cells := make([]viewmodel.Cell, 0, len(row))
		for _, c := range row {
			cells = append(cells, viewmodel.Cell{Glyph: c.Glyph(), Class: c.Class()})
		}
		rows = append(rows, cells)
	}
	return viewmodel.BoardFragment{
		RoomID:  snap.ID,
		Rows:    rows,
		Text:    snap.Display.String(),
		Block:   snap.Block,
		Started: snap.Started(),
		Position: fmt.Sprintf("(%d, %d, %d, %d)",
			snap.Location.X, snap.Location.Y, snap.Location.EnemyX, snap.Location.EnemyY),
	}
}

func toPlayers(snap game.Snapshot, canSign bool) viewmodel.PlayersFragment {
	out := viewmodel.PlayersFragment{
		RoomID:  snap.ID,
		CanJoin: canSign && !snap.Joined && len(snap.Players) < 2 && snap.Status == game.StatusLobby,
	}
	for _, p := range snap.Players {
		out.Players = append(out.Players, viewmodel.PlayerEntry{
			Address: p.Hex(),
			Short:   shortAddress(p),
			IsYou:   p == snap.Account,
		})
	}
	return out
}

func toScores(snap game.Snapshot) viewmodel.ScoresFragment {
	return viewmodel.ScoresFragment{
		RoomID: snap.ID,
		Mine:   snap.Score.Mine,
		Enemy:  snap.Score.Enemy,
	}
}

func toStatus(snap game.Snapshot, canSign bool) viewmodel.StatusFragment {
	out := viewmodel.StatusFragment{
		RoomID:     snap.ID,
		Status:     string(snap.Status),
		Label:      statusLabels[snap.Status],
		HasWinner:  snap.HasWinner(),
		Won:        snap.Won(),
		CanStart:   canSign && snap.Joined && snap.Status == game.StatusLobby,
		CanRestart: canSign && snap.Joined && snap.Status == game.StatusFinished,
		CanPlay:    canSign && snap.Joined && snap.Started(),
		ReadOnly:   !canSign,
	}
	if out.CanPlay {
		out.Pieces = toPieces()
	}
	if snap.HasWinner() {
		out.Winner = shortAddress(snap.Winner)
	}
	return out
}

func toPieces() []viewmodel.PieceOption {
	out := make([]viewmodel.PieceOption, 0, len(game.Pieces))
	for _, p := range game.Pieces {
		out = append(out, viewmodel.PieceOption{Value: int(p), Label: p.String()})
	}
	return out
}

func toState(snap game.Snapshot) viewmodel.State {
	out := viewmodel.State{
		Room:    snap.ID,
		Status:  string(snap.Status),
		Started: snap.Started(),
		Account: snap.Account.Hex(),
		Players: make([]string, 0, len(snap.Players)),
		Joined:  snap.Joined,
		Location: viewmodel.Location{
			X:      snap.Location.X,
			Y:      snap.Location.Y,
			EnemyX: snap.Location.EnemyX,
			EnemyY: snap.Location.EnemyY,
		},
		Score:     viewmodel.Score{Mine: snap.Score.Mine, Enemy: snap.Score.Enemy},
		Board:     []string{},
		Block:     snap.Block,
		UpdatedAt: snap.UpdatedAt,
	}
	for _, p := range snap.Players {
		out.Players = append(out.Players, p.Hex())
	}
	if snap.HasWinner() {
		out.Winner = snap.Winner.Hex()
	}
	if !snap.Display.Empty() {
		out.Board = strings.Split(snap.Display.String(), "\n")
	}
	return out
}

func buildInviteURL(r *http.Request, baseURL string, id uint64) string {
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		return strings.TrimRight(baseURL, "/") + roomURL(id)
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + roomURL(id)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"chaintetris/internal/chain"
	"chaintetris/internal/game"
)

var errQuit = errors.New("quit")

// command is one parsed line of keyboard input.
type command struct {
	name  string
	dx    int
	dy    int
	piece game.PieceType
}

const help = "a/d/s move, w rotate, x or space drop, j join, g start, r restart, t tick, p N select piece, q quit"

func parseCommand(line string) (command, error) {
	if strings.TrimSpace(line) == "" && line != "" {
		return command{name: "drop"}, nil
	}
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command (%s)", help)
	}
	switch fields[0] {
	case "a":
		return command{name: "move", dx: -1}, nil
	case "d":
		return command{name: "move", dx: 1}, nil
	case "s":
		return command{name: "move", dy: 1}, nil
	case "w":
		return command{name: "rotate"}, nil
	case "x":
		return command{name: "drop"}, nil
	case "j":
		return command{name: "join"}, nil
	case "g":
		return command{name: "start"}, nil
	case "r":
		return command{name: "restart"}, nil
	case "t":
		return command{name: "tick"}, nil
	case "q":
		return command{name: "quit"}, nil
	case "p":
		if len(fields) != 2 {
			return command{}, errors.New("usage: p N")
		}
		piece, ok := game.ParsePiece(fields[1])
		if !ok {
			return command{}, fmt.Errorf("unknown piece %q", fields[1])
		}
		return command{name: "select", piece: piece}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (%s)", fields[0], help)
}

// Actions is the part of the game store the CLI drives.
type Actions interface {
	Move(ctx context.Context, id uint64, dx, dy int) (chain.TxResult, error)
	Rotate(ctx context.Context, id uint64) (chain.TxResult, error)
	HardDrop(ctx context.Context, id uint64) (chain.TxResult, error)
	Join(ctx context.Context, id uint64) (chain.TxResult, error)
	Start(ctx context.Context, id uint64) (chain.TxResult, error)
	Restart(ctx context.Context, id uint64) (chain.TxResult, error)
	Tick(ctx context.Context, id uint64) (chain.TxResult, error)
	SelectPiece(ctx context.Context, id uint64, piece game.PieceType) (chain.TxResult, error)
}

func execute(ctx context.Context, a Actions, room uint64, cmd command) (chain.TxResult, error) {
	switch cmd.name {
	case "move":
		return a.Move(ctx, room, cmd.dx, cmd.dy)
	case "rotate":
		return a.Rotate(ctx, room)
	case "drop":
		return a.HardDrop(ctx, room)
	case "join":
		return a.Join(ctx, room)
	case "start":
		return a.Start(ctx, room)
	case "restart":
		return a.Restart(ctx, room)
	case "tick":
		return a.Tick(ctx, room)
	case "select":
		return a.SelectPiece(ctx, room, cmd.piece)
	case "quit":
		return chain.TxResult{}, errQuit
	}
	return chain.TxResult{}, fmt.Errorf("unhandled command %q", cmd.name)
}

func printSnapshot(w io.Writer, snap game.Snapshot) {
	fmt.Fprintf(w, "room %d  %s  block %d\n", snap.ID, snap.Status, snap.Block)
	if snap.Account == (common.Address{}) {
		fmt.Fprintln(w, "account none (read-only)")
	} else {
		fmt.Fprintf(w, "account %s\n", snap.Account.Hex())
	}
	fmt.Fprintf(w, "score you %d  opponent %d\n", snap.Score.Mine, snap.Score.Enemy)
	if snap.HasWinner() {
		if snap.Won() {
			fmt.Fprintln(w, "you won")
		} else {
			fmt.Fprintf(w, "winner %s\n", snap.Winner.Hex())
		}
	}
	if snap.Display.Empty() {
		fmt.Fprintln(w, "(no board)")
		return
	}
	fmt.Fprintln(w, snap.Display.String())
}

package game

import (
	"strings"

	"chaintetris/internal/chain"
)

// Cell is one rendered board square.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellSettled
	CellMarked
	CellMine
	CellEnemy
)

var cellGlyphs = [...]string{
	CellEmpty:   "⬜",
	CellSettled: "⬛",
	CellMarked:  "🔴",
	CellMine:    "🟦",
	CellEnemy:   "🟥",
}

// Glyph returns the emoji used for the cell in text output.
func (c Cell) Glyph() string {
	if int(c) < len(cellGlyphs) {
		return cellGlyphs[c]
	}
	return cellGlyphs[CellMarked]
}

// Class returns a short CSS-friendly name for the cell.
func (c Cell) Class() string {
	switch c {
	case CellEmpty:
		return "empty"
	case CellSettled:
		return "settled"
	case CellMine:
		return "mine"
	case CellEnemy:
		return "enemy"
	default:
		return "marked"
	}
}

// Display is a composed board ready for rendering.
type Display [][]Cell

// Empty reports whether there is nothing to draw.
func (d Display) Empty() bool {
	return len(d) == 0
}

// String renders the board as emoji rows, cells separated by spaces.
func (d Display) String() string {
	var b strings.Builder
	for y, row := range d {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x, cell := range row {
			if x > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(cell.Glyph())
		}
	}
	return b.String()
}

// Compose overlays both falling pieces on the settled board. The caller's piece
// is drawn first and the opponent's on top; piece cells outside the board are skipped.
func Compose(board chain.Grid, loc chain.Location, mine, enemy chain.Shape) Display {
	out := make(Display, len(board))
	for y, row := range board {
		cells := make([]Cell, len(row))
		for x, v := range row {
			switch v {
			case chain.CellEmpty:
				cells[x] = CellEmpty
			case chain.CellFilled:
				cells[x] = CellSettled
			default:
				cells[x] = CellMarked
			}
		}
		out[y] = cells
	}
	overlay(out, mine, loc.X, loc.Y, CellMine)
	overlay(out, enemy, loc.EnemyX, loc.EnemyY, CellEnemy)
	return out
}

func overlay(d Display, shape chain.Shape, originX, originY int, cell Cell) {
	for dy, row := range shape {
		y := originY + dy
		if y < 0 || y >= len(d) {
			continue
		}
		for dx, v := range row {
			if v != chain.CellFilled {
				continue
			}
			x := originX + dx
			if x < 0 || x >= len(d[y]) {
				continue
			}
			d[y][x] = cell
		}
	}
}

package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chaintetris/internal/chain"
)

func TestCompose_OverlaysBothPieces(t *testing.T) {
	board := chain.Grid{{0, 0, 0, 0}, {0, 0, 0, 0}, {1, 1, 2, 1}}
	loc := chain.Location{X: 0, Y: 0, EnemyX: 3, EnemyY: 1}
	d := Compose(board, loc, chain.Shape{{1, 1}}, chain.Shape{{1}})

	assert.Equal(t, Display{
		{CellMine, CellMine, CellEmpty, CellEmpty},
		{CellEmpty, CellEmpty, CellEmpty, CellEnemy},
		{CellSettled, CellSettled, CellMarked, CellSettled},
	}, d)
	assert.Equal(t, "🟦 🟦 ⬜ ⬜\n⬜ ⬜ ⬜ 🟥\n⬛ ⬛ 🔴 ⬛", d.String())
}

func TestCompose_EnemyDrawnOverMine(t *testing.T) {
	board := chain.Grid{{0, 0}}
	loc := chain.Location{X: 0, Y: 0, EnemyX: 1, EnemyY: 0}
	d := Compose(board, loc, chain.Shape{{1, 1}}, chain.Shape{{1}})
	assert.Equal(t, Display{{CellMine, CellEnemy}}, d)
}

func TestCompose_SkipsCellsOutsideBoard(t *testing.T) {
	board := chain.Grid{{0, 0}, {0, 0}}
	loc := chain.Location{X: -1, Y: 1, EnemyX: 5, EnemyY: 5}
	d := Compose(board, loc, chain.Shape{{1, 1}, {1, 1}}, chain.Shape{{1}})
	assert.Equal(t, Display{{CellEmpty, CellEmpty}, {CellMine, CellEmpty}}, d)
}

func TestCompose_IgnoresEmptyShapeCells(t *testing.T) {
	board := chain.Grid{{1, 0}}
	d := Compose(board, chain.Location{}, chain.Shape{{0, 1}}, nil)
	assert.Equal(t, Display{{CellSettled, CellMine}}, d)
}

func TestCompose_EmptyBoard(t *testing.T) {
	d := Compose(nil, chain.Location{}, chain.Shape{{1}}, chain.Shape{{1}})
	assert.True(t, d.Empty())
	assert.Equal(t, "", d.String())
}

func TestCell_GlyphAndClass(t *testing.T) {
	assert.Equal(t, "⬜", CellEmpty.Glyph())
	assert.Equal(t, "🟥", CellEnemy.Glyph())
	assert.Equal(t, "🔴", Cell(42).Glyph())
	assert.Equal(t, "mine", CellMine.Class())
	assert.Equal(t, "marked", Cell(42).Class())
}

func TestParsePiece(t *testing.T) {
	cases := map[string]struct {
		want PieceType
		ok   bool
	}{
		"I":   {PieceI, true},
		"t":   {PieceT, true},
		"6":   {PieceL, true},
		"200": {200, true},
		"256": {0, false},
		"":    {0, false},
		"X":   {0, false},
	}
	for in, tc := range cases {
		got, ok := ParsePiece(in)
		assert.Equal(t, tc.ok, ok, in)
		if tc.ok {
			assert.Equal(t, tc.want, got, in)
		}
	}
	assert.Equal(t, "S", PieceS.String())
	assert.Equal(t, "#9", PieceType(9).String())
}

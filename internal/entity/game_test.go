package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_Opponent(t *testing.T) {
	t.Run("X and O are opponents", func(t *testing.T) {
		// Then: each player symbol maps to the other one
		assert.Equal(t, PlayerO, PlayerX.Opponent())
		assert.Equal(t, PlayerX, PlayerO.Opponent())
	})

	t.Run("Empty cell has no opponent", func(t *testing.T) {
		// Then: an empty cell maps to an empty cell
		assert.Equal(t, EmptyCell, EmptyCell.Opponent())
		assert.False(t, EmptyCell.IsPlayer())
	})
}

func TestCell_Validate(t *testing.T) {
	t.Run("Known symbols are valid", func(t *testing.T) {
		for _, cell := range []Cell{EmptyCell, PlayerX, PlayerO} {
			assert.NoError(t, cell.Validate())
		}
	})

	t.Run("Unknown symbol is rejected", func(t *testing.T) {
		// When: validating a lowercase x
		err := Cell("x").Validate()

		// Then: ErrUnknownCell should be returned
		assert.ErrorIs(t, err, ErrUnknownCell)
	})
}

func TestEndState(t *testing.T) {
	t.Run("Winner is derived from the end state", func(t *testing.T) {
		assert.Equal(t, PlayerX, EndStateXWon.Winner())
		assert.Equal(t, PlayerO, EndStateOWon.Winner())
		assert.Equal(t, EmptyCell, EndStateTied.Winner())
		assert.Equal(t, EmptyCell, EndStateAbandoned.Winner())
	})

	t.Run("Unknown end state is rejected", func(t *testing.T) {
		err := EndState("resigned").Validate()

		assert.ErrorIs(t, err, ErrUnknownEndState)
	})
}

func TestWinningLocation(t *testing.T) {
	t.Run("Codes follow rows, columns, then diagonals", func(t *testing.T) {
		// Then: the wire codes are stable
		assert.Equal(t, -1, int(NoWinningLocation))
		assert.Equal(t, 0, int(Row0))
		assert.Equal(t, 3, int(Col0))
		assert.Equal(t, 6, int(DiagonalTopLeft))
		assert.Equal(t, 7, int(DiagonalBottomLeft))
	})

	t.Run("String names the line", func(t *testing.T) {
		assert.Equal(t, "row-2", Row2.String())
		assert.Equal(t, "column-1", Col1.String())
		assert.Equal(t, "diagonal-bottom-left", DiagonalBottomLeft.String())
		assert.Equal(t, "none", NoWinningLocation.String())
	})

	t.Run("Out of range code is rejected", func(t *testing.T) {
		assert.ErrorIs(t, WinningLocation(8).Validate(), ErrUnknownLocation)
		assert.ErrorIs(t, WinningLocation(-2).Validate(), ErrUnknownLocation)
	})
}

func TestLayout_Validate(t *testing.T) {
	t.Run("Layout with an unknown symbol reports its position", func(t *testing.T) {
		// Given: a layout with a bogus symbol in the middle
		layout := Layout{}
		layout[1][1] = "?"

		// When: validating it
		err := layout.Validate()

		// Then: the error names the cell
		require.ErrorIs(t, err, ErrUnknownCell)
		assert.Contains(t, err.Error(), "cell (1, 1)")
	})
}

func TestOutcome(t *testing.T) {
	t.Run("InProgress is not finished and has no location", func(t *testing.T) {
		outcome := InProgress()

		assert.False(t, outcome.IsFinished())
		assert.Equal(t, NoWinningLocation, outcome.Location)
	})
}

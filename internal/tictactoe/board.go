package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

type position struct {
	row, col int
}

type winLine struct {
	location entity.WinningLocation
	cells    [3]position
}

// WinLines is scanned in order; the first complete line decides the winning location.
var WinLines = [8]winLine{
	{entity.Row0, [3]position{{0, 0}, {0, 1}, {0, 2}}},
	{entity.Row1, [3]position{{1, 0}, {1, 1}, {1, 2}}},
	{entity.Row2, [3]position{{2, 0}, {2, 1}, {2, 2}}},
	{entity.Col0, [3]position{{0, 0}, {1, 0}, {2, 0}}},
	{entity.Col1, [3]position{{0, 1}, {1, 1}, {2, 1}}},
	{entity.Col2, [3]position{{0, 2}, {1, 2}, {2, 2}}},
	{entity.DiagonalTopLeft, [3]position{{0, 0}, {1, 1}, {2, 2}}},
	{entity.DiagonalBottomLeft, [3]position{{2, 0}, {1, 1}, {0, 2}}},
}

// Board is the 3x3 grid. Cells change only through Place.
type Board struct {
	cells entity.Layout
}

func NewBoard() *Board {
	return &Board{}
}

// Place puts symbol on (row, col). A rejected placement leaves the board untouched.
func (that *Board) Place(row, col int, symbol entity.Cell) error {
	if that.Evaluate().IsFinished() {
		return apperror.ErrGameFinished
	}

	if err := that.validateMove(row, col, symbol); err != nil {
		return fmt.Errorf("invalid move: %w", err)
	}

	that.cells[row][col] = symbol

	return nil
}

// validateMove - checks if the move is valid.
func (that *Board) validateMove(row, col int, symbol entity.Cell) error {
	if row < 0 || row >= entity.BoardSize || col < 0 || col >= entity.BoardSize {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrInvalidCell, row, col)
	}

	if !symbol.IsPlayer() {
		return fmt.Errorf("%w: %q", apperror.ErrInvalidSymbol, string(symbol))
	}

	if that.Turn() != symbol {
		return apperror.ErrNotYourTurn
	}

	if that.cells[row][col] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	return nil
}

// Evaluate reports the current outcome without changing the board.
func (that *Board) Evaluate() entity.Outcome {
	for _, line := range WinLines {
		a := that.cells[line.cells[0].row][line.cells[0].col]
		b := that.cells[line.cells[1].row][line.cells[1].col]
		c := that.cells[line.cells[2].row][line.cells[2].col]

		if a != entity.EmptyCell && a == b && b == c {
			return entity.Outcome{EndState: wonBy(a), Location: line.location}
		}
	}

	// the game will continue until all the squares are full
	if that.filled() < entity.BoardSize*entity.BoardSize {
		return entity.InProgress()
	}

	return entity.Outcome{EndState: entity.EndStateTied, Location: entity.NoWinningLocation}
}

// Turn returns the symbol expected to move next. X always moves first.
func (that *Board) Turn() entity.Cell {
	var xs, os int

	for _, row := range that.cells {
		for _, cell := range row {
			switch cell {
			case entity.PlayerX:
				xs++
			case entity.PlayerO:
				os++
			}
		}
	}

	if xs > os {
		return entity.PlayerO
	}

	return entity.PlayerX
}

func (that *Board) Cell(row, col int) entity.Cell {
	return that.cells[row][col]
}

func (that *Board) Layout() entity.Layout {
	return that.cells
}

func (that *Board) Reset() {
	that.cells = entity.Layout{}
}

func (that *Board) filled() int {
	count := 0

	for _, row := range that.cells {
		for _, cell := range row {
			if cell != entity.EmptyCell {
				count++
			}
		}
	}

	return count
}

func wonBy(symbol entity.Cell) entity.EndState {
	if symbol == entity.PlayerX {
		return entity.EndStateXWon
	}

	return entity.EndStateOWon
}

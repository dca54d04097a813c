package entity

import (
	"errors"
	"fmt"
)

const BoardSize = 3

// Cell is the content of one board square.
type Cell string

const (
	EmptyCell Cell = ""
	PlayerX   Cell = "X"
	PlayerO   Cell = "O"
)

const (
	StatusWaiting  = "waiting"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

// EndState tags how a finished game ended.
type EndState string

const (
	EndStateXWon      EndState = "X-won"
	EndStateOWon      EndState = "O-won"
	EndStateTied      EndState = "draw"
	EndStateAbandoned EndState = "abandoned"
)

// WinningLocation identifies the line that completed a win.
type WinningLocation int

const (
	NoWinningLocation WinningLocation = iota - 1
	Row0
	Row1
	Row2
	Col0
	Col1
	Col2
	DiagonalTopLeft
	DiagonalBottomLeft
)

var (
	ErrUnknownCell     = errors.New("unknown cell symbol")
	ErrUnknownEndState = errors.New("unknown end state")
	ErrUnknownLocation = errors.New("unknown winning location")
)

// Layout is a snapshot of the board, indexed [row][column].
type Layout [BoardSize][BoardSize]Cell

func (that Cell) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

// Opponent returns the other player's symbol, or EmptyCell for a non-player cell.
func (that Cell) Opponent() Cell {
	switch that {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return EmptyCell
	}
}

func (that Cell) Validate() error {
	if that == EmptyCell || that.IsPlayer() {
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownCell, string(that))
}

func (that EndState) Validate() error {
	switch that {
	case EndStateXWon, EndStateOWon, EndStateTied, EndStateAbandoned:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEndState, string(that))
	}
}

// Winner returns the symbol that won, or EmptyCell for a tie or an abandoned game.
func (that EndState) Winner() Cell {
	switch that {
	case EndStateXWon:
		return PlayerX
	case EndStateOWon:
		return PlayerO
	default:
		return EmptyCell
	}
}

func (that WinningLocation) Validate() error {
	if that < NoWinningLocation || that > DiagonalBottomLeft {
		return fmt.Errorf("%w: %d", ErrUnknownLocation, int(that))
	}

	return nil
}

func (that WinningLocation) String() string {
	switch {
	case that >= Row0 && that <= Row2:
		return fmt.Sprintf("row-%d", int(that-Row0))
	case that >= Col0 && that <= Col2:
		return fmt.Sprintf("column-%d", int(that-Col0))
	case that == DiagonalTopLeft:
		return "diagonal-top-left"
	case that == DiagonalBottomLeft:
		return "diagonal-bottom-left"
	default:
		return "none"
	}
}

func (that Layout) Validate() error {
	for row := range that {
		for col := range that[row] {
			if err := that[row][col].Validate(); err != nil {
				return fmt.Errorf("cell (%d, %d): %w", row, col, err)
			}
		}
	}

	return nil
}

// Outcome is the result of evaluating a board. An empty EndState means the game continues.
type Outcome struct {
	EndState EndState
	Location WinningLocation
}

func InProgress() Outcome {
	return Outcome{Location: NoWinningLocation}
}

func (that Outcome) IsFinished() bool {
	return that.EndState != ""
}

package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMove      = errors.New("illegal move")
	ErrGameFull         = errors.New("game is full")
	ErrAlreadyJoined    = errors.New("player already joined")
	ErrMalformedMessage = errors.New("malformed message")
	ErrChannelFailure   = errors.New("channel failure")
)

// Every move rejection wraps ErrIllegalMove.
var (
	ErrGameFinished     = fmt.Errorf("%w: game is already finished", ErrIllegalMove)
	ErrGameIsNotStarted = fmt.Errorf("%w: game is not started", ErrIllegalMove)
	ErrNotYourTurn      = fmt.Errorf("%w: it's not your turn", ErrIllegalMove)
	ErrCellOccupied     = fmt.Errorf("%w: cell is already occupied", ErrIllegalMove)
	ErrInvalidCell      = fmt.Errorf("%w: invalid cell", ErrIllegalMove)
	ErrInvalidSymbol    = fmt.Errorf("%w: invalid player symbol", ErrIllegalMove)
	ErrNotPlaying       = fmt.Errorf("%w: you are not playing the game", ErrIllegalMove)
)

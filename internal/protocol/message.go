// Package protocol defines the messages exchanged between game clients and the host,
// and the codecs that put them on the wire.
package protocol

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

var ErrInconsistentEnd = errors.New("end state does not match the winning location")

// Kind is the action tag carried by every envelope.
type Kind string

const (
	KindJoin               Kind = "join"
	KindJoinAck            Kind = "joined"
	KindBoardLayout        Kind = "board_layout_response"
	KindMove               Kind = "move"
	KindMoveBroadcast      Kind = "moved"
	KindEnd                Kind = "endgame"
	KindError              Kind = "error"
	KindLeave              Kind = "leave"
	KindRequestBoardLayout Kind = "board_layout_request"
)

// ErrorKind tells the client how to react to an Error message.
type ErrorKind string

const (
	ErrorKindGameFull      ErrorKind = "game_full"
	ErrorKindIllegalMove   ErrorKind = "illegal_move"
	ErrorKindAlreadyJoined ErrorKind = "already_joined"
	ErrorKindInternal      ErrorKind = "internal"
)

// Message is one of the concrete message types below.
type Message interface {
	Kind() Kind
}

// Join asks the host for a seat. client -> host.
type Join struct {
	Name string `json:"name"`
}

// JoinAck tells a player which symbol it got. host -> client.
type JoinAck struct {
	Symbol   entity.Cell `json:"player"`
	Opponent *string     `json:"opponent,omitempty"`
}

// BoardLayout carries the full board. host -> client.
type BoardLayout struct {
	Board entity.Layout `json:"board"`
}

// Move places the sender's symbol. client -> host.
type Move struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// MoveBroadcast announces an applied move. host -> all.
type MoveBroadcast struct {
	Symbol     entity.Cell `json:"player"`
	Row        int         `json:"row"`
	Column     int         `json:"column"`
	IsGameOver bool        `json:"game_over"`
}

// End announces the end of the game. host -> all.
type End struct {
	EndState        entity.EndState        `json:"end_state"`
	WinningLocation entity.WinningLocation `json:"winning_location"`
}

// Error reports a rejected request. host -> client.
type Error struct {
	Code    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Leave gives up the sender's seat. client -> host.
type Leave struct{}

// RequestBoardLayout asks for a BoardLayout. client -> host.
type RequestBoardLayout struct{}

func (Join) Kind() Kind               { return KindJoin }
func (JoinAck) Kind() Kind            { return KindJoinAck }
func (BoardLayout) Kind() Kind        { return KindBoardLayout }
func (Move) Kind() Kind               { return KindMove }
func (MoveBroadcast) Kind() Kind      { return KindMoveBroadcast }
func (End) Kind() Kind                { return KindEnd }
func (Error) Kind() Kind              { return KindError }
func (Leave) Kind() Kind              { return KindLeave }
func (RequestBoardLayout) Kind() Kind { return KindRequestBoardLayout }

func (Join) required() []string { return []string{"name"} }

func (Move) required() []string { return []string{"row", "column"} }

func (that JoinAck) validate() error {
	if !that.Symbol.IsPlayer() {
		return entity.ErrUnknownCell
	}

	return nil
}

func (that BoardLayout) validate() error {
	return that.Board.Validate()
}

func (that MoveBroadcast) validate() error {
	if !that.Symbol.IsPlayer() {
		return entity.ErrUnknownCell
	}

	return nil
}

func (that End) validate() error {
	if err := that.EndState.Validate(); err != nil {
		return err
	}

	if err := that.WinningLocation.Validate(); err != nil {
		return err
	}

	// only a win has a line
	hasLine := that.WinningLocation != entity.NoWinningLocation
	if hasLine != that.EndState.Winner().IsPlayer() {
		return fmt.Errorf("%w: %s at %s", ErrInconsistentEnd, that.EndState, that.WinningLocation)
	}

	return nil
}

func (that Error) IsGameFull() bool {
	return that.Code == ErrorKindGameFull
}

// NewError converts a host-side error into the Error message sent to the client.
func NewError(err error) Error {
	return Error{Code: KindOf(err), Message: err.Error()}
}

// KindOf maps an error to its wire kind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, apperror.ErrGameFull):
		return ErrorKindGameFull
	case errors.Is(err, apperror.ErrAlreadyJoined):
		return ErrorKindAlreadyJoined
	case errors.Is(err, apperror.ErrIllegalMove):
		return ErrorKindIllegalMove
	default:
		return ErrorKindInternal
	}
}

// Opponent is a helper for building JoinAck values.
func Opponent(name string) *string {
	return &name
}

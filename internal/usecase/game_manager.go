package usecase

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-session/internal/tictactoe"
)

const slotCount = 2

// slot 0 is X, slot 1 is O
var slotSymbols = [slotCount]entity.Cell{entity.PlayerX, entity.PlayerO}

// Outgoing is a message addressed to one participant.
type Outgoing struct {
	To      string
	Message protocol.Message
}

// GameManager is the host authority over one board. It is not safe for concurrent use;
// callers serialize access.
type GameManager struct {
	logger *slog.Logger

	board  *tictactoe.Board
	status string
	slots  [slotCount]*entity.Player

	// connection order, used for broadcasts
	participants []string
}

func NewGameManager(logger *slog.Logger) *GameManager {
	return &GameManager{
		logger: logger.With("component", "game_manager"),

		board:  tictactoe.NewBoard(),
		status: entity.StatusWaiting,
	}
}

// Connect registers a participant. Participants start as observers.
func (that *GameManager) Connect(id string) []Outgoing {
	if !slices.Contains(that.participants, id) {
		that.participants = append(that.participants, id)
	}

	return nil
}

// Disconnect removes a participant. A seated player leaving an ongoing game abandons it.
func (that *GameManager) Disconnect(id string) []Outgoing {
	that.participants = slices.DeleteFunc(that.participants, func(p string) bool { return p == id })

	return that.leave(id)
}

// Handle applies one message from participant id and returns what has to be sent.
func (that *GameManager) Handle(id string, msg protocol.Message) []Outgoing {
	log := that.logger.With("method", "Handle", "participant", id)

	that.Connect(id)

	var (
		out []Outgoing
		err error
	)

	switch m := msg.(type) {
	case protocol.Join:
		out, err = that.join(id, m.Name)
	case protocol.Move:
		out, err = that.move(id, m.Row, m.Column)
	case protocol.Leave:
		out = that.leave(id)
	case protocol.RequestBoardLayout:
		out = that.unicast(id, protocol.BoardLayout{Board: that.board.Layout()})
	default:
		log.Warn("unexpected message dropped", "kind", msg.Kind())
		return nil
	}

	if err != nil {
		log.Debug("request rejected", "kind", msg.Kind(), "error", err)
		return that.unicast(id, protocol.NewError(err))
	}

	return out
}

func (that *GameManager) join(id, name string) ([]Outgoing, error) {
	log := that.logger.With("method", "join", "participant", id)

	if seat := that.seatOf(id); seat != nil {
		return nil, fmt.Errorf("%w: you are already %s, you aren't allowed to play against yourself",
			apperror.ErrAlreadyJoined, seat.Symbol)
	}

	slot := slices.Index(that.slots[:], nil)
	if slot < 0 {
		return nil, apperror.ErrGameFull
	}

	reset := that.status == entity.StatusFinished
	if reset {
		that.board.Reset()
		that.status = entity.StatusWaiting
	}

	player := &entity.Player{ID: id, Name: name, Symbol: slotSymbols[slot]}
	that.slots[slot] = player

	ack := protocol.JoinAck{Symbol: player.Symbol}

	opponent := that.slots[1-slot]
	if opponent != nil {
		ack.Opponent = protocol.Opponent(opponent.Name)
	}

	out := []Outgoing{
		{To: id, Message: protocol.BoardLayout{Board: that.board.Layout()}},
		{To: id, Message: ack},
	}

	// everyone else still shows the finished board
	if reset {
		out = append(out, that.broadcast(protocol.BoardLayout{Board: that.board.Layout()}, id)...)
	}

	if opponent != nil {
		out = append(out, Outgoing{
			To:      opponent.ID,
			Message: protocol.JoinAck{Symbol: opponent.Symbol, Opponent: protocol.Opponent(player.Name)},
		})

		that.status = entity.StatusOngoing
	}

	log.Info("player joined", "name", name, "symbol", player.Symbol, "status", that.status)

	return out, nil
}

func (that *GameManager) move(id string, row, col int) ([]Outgoing, error) {
	if that.status == entity.StatusFinished {
		return nil, apperror.ErrGameFinished
	}

	seat := that.seatOf(id)
	if seat == nil {
		return nil, apperror.ErrNotPlaying
	}

	if that.status == entity.StatusWaiting {
		return nil, apperror.ErrGameIsNotStarted
	}

	if err := that.board.Place(row, col, seat.Symbol); err != nil {
		return nil, fmt.Errorf("failed to place %s: %w", seat.Symbol, err)
	}

	outcome := that.board.Evaluate()

	out := that.broadcast(protocol.MoveBroadcast{
		Symbol:     seat.Symbol,
		Row:        row,
		Column:     col,
		IsGameOver: outcome.IsFinished(),
	}, "")

	if outcome.IsFinished() {
		out = append(out, that.finish(outcome, "")...)
	}

	return out, nil
}

// leave frees the participant's slot. An ongoing game is abandoned.
func (that *GameManager) leave(id string) []Outgoing {
	seat := that.seatOf(id)
	if seat == nil {
		return nil
	}

	if that.status == entity.StatusOngoing {
		return that.finish(entity.Outcome{
			EndState: entity.EndStateAbandoned,
			Location: entity.NoWinningLocation,
		}, id)
	}

	that.release(seat.Symbol)
	that.logger.Info("player left", "participant", id, "symbol", seat.Symbol)

	return nil
}

// finish ends the game, releases both slots and notifies everyone but skip.
func (that *GameManager) finish(outcome entity.Outcome, skip string) []Outgoing {
	that.status = entity.StatusFinished
	that.slots = [slotCount]*entity.Player{}

	that.logger.Info("game finished", "end_state", outcome.EndState, "location", outcome.Location.String())

	return that.broadcast(protocol.End{EndState: outcome.EndState, WinningLocation: outcome.Location}, skip)
}

func (that *GameManager) release(symbol entity.Cell) {
	for i := range that.slots {
		if that.slots[i] != nil && that.slots[i].Symbol == symbol {
			that.slots[i] = nil
		}
	}
}

func (that *GameManager) seatOf(id string) *entity.Player {
	for _, player := range that.slots {
		if player != nil && player.ID == id {
			return player
		}
	}

	return nil
}

func (that *GameManager) unicast(id string, msg protocol.Message) []Outgoing {
	return []Outgoing{{To: id, Message: msg}}
}

func (that *GameManager) broadcast(msg protocol.Message, skip string) []Outgoing {
	out := make([]Outgoing, 0, len(that.participants))

	for _, id := range that.participants {
		if id == skip {
			continue
		}

		out = append(out, Outgoing{To: id, Message: msg})
	}

	return out
}

func (that *GameManager) Status() string {
	return that.status
}

func (that *GameManager) Layout() entity.Layout {
	return that.board.Layout()
}

// Players returns copies of the seated players, X first.
func (that *GameManager) Players() []entity.Player {
	var players []entity.Player

	for _, player := range that.slots {
		if player != nil {
			players = append(players, *player)
		}
	}

	return players
}

func (that *GameManager) Participants() []string {
	return slices.Clone(that.participants)
}

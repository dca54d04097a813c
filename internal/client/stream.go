// Package client adapts a game channel to typed callbacks for the presentation layer.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/pkg/eventloop"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

var (
	ErrStreamAttached = errors.New("stream is already attached")
	ErrNotAttached    = errors.New("stream is not attached")
)

// Listener receives game events. Calls never overlap and follow the receive order.
type Listener interface {
	OnGameJoined(symbol entity.Cell, opponent string)
	OnGameMove(symbol entity.Cell, row, col int, isGameOver bool)
	OnGameEnd(endState entity.EndState, location entity.WinningLocation, abandoned bool)
	OnGameBoardLayout(board entity.Layout)
	OnGameError(message string, isFull bool)
}

// Sender is the outbound half of a game channel.
type Sender interface {
	Send(frame []byte) error
}

// Stream sends player intents and turns host messages into Listener calls.
// It never changes the board itself.
type Stream struct {
	logger   *slog.Logger
	codec    protocol.Codec
	listener Listener

	loop *eventloop.Loop

	mu      sync.Mutex
	channel Sender

	observer atomic.Bool
}

func NewStream(logger *slog.Logger, codec protocol.Codec, listener Listener, queueSize int) *Stream {
	return &Stream{
		logger:   logger.With("component", "stream"),
		codec:    codec,
		listener: listener,

		loop: eventloop.New(queueSize),
	}
}

// Run dispatches delivered frames until ctx is canceled.
func (that *Stream) Run(ctx context.Context) error {
	if err := that.loop.Run(ctx); err != nil {
		return fmt.Errorf("failed to run stream loop: %w", err)
	}

	return nil
}

// Attach binds the stream to a channel. Only one channel can be attached at a time.
func (that *Stream) Attach(channel Sender) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.channel != nil {
		return ErrStreamAttached
	}

	that.channel = channel
	that.observer.Store(false)

	return nil
}

func (that *Stream) Detach() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.channel = nil
}

func (that *Stream) Attached() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.channel != nil
}

// IsObserver reports whether the host turned the last join down because the game was full.
func (that *Stream) IsObserver() bool {
	return that.observer.Load()
}

func (that *Stream) Join(name string) error {
	return that.send(protocol.Join{Name: name})
}

func (that *Stream) Move(row, col int) error {
	return that.send(protocol.Move{Row: row, Column: col})
}

func (that *Stream) Leave() error {
	return that.send(protocol.Leave{})
}

func (that *Stream) RequestBoardLayout() error {
	return that.send(protocol.RequestBoardLayout{})
}

func (that *Stream) send(msg protocol.Message) error {
	frame, err := that.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Kind(), err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.channel == nil {
		return ErrNotAttached
	}

	if err = that.channel.Send(frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Kind(), err)
	}

	return nil
}

// Deliver queues an inbound frame for dispatch.
func (that *Stream) Deliver(frame []byte) error {
	return that.loop.Post(func() {
		that.receive(frame)
	})
}

func (that *Stream) receive(frame []byte) {
	log := that.logger.With("method", "receive")

	msg, err := that.codec.Decode(frame)
	if err != nil {
		log.Warn("malformed frame dropped", "error", err, "size", len(frame))
		return
	}

	if !dispatch(that.listener, msg) {
		log.Warn("unexpected message dropped", "kind", msg.Kind())
		return
	}

	if e, ok := msg.(protocol.Error); ok && e.IsGameFull() {
		that.observer.Store(true)

		if err = that.RequestBoardLayout(); err != nil {
			log.Error("failed to request board layout", "error", err)
		}
	}

	if _, ok := msg.(protocol.JoinAck); ok {
		that.observer.Store(false)
	}
}

// dispatch calls the one callback matching msg. It reports false for messages a client never receives.
func dispatch(listener Listener, msg protocol.Message) bool {
	switch m := msg.(type) {
	case protocol.JoinAck:
		opponent := ""
		if m.Opponent != nil {
			opponent = *m.Opponent
		}

		listener.OnGameJoined(m.Symbol, opponent)
	case protocol.MoveBroadcast:
		listener.OnGameMove(m.Symbol, m.Row, m.Column, m.IsGameOver)
	case protocol.End:
		listener.OnGameEnd(m.EndState, m.WinningLocation, m.EndState == entity.EndStateAbandoned)
	case protocol.BoardLayout:
		listener.OnGameBoardLayout(m.Board)
	case protocol.Error:
		listener.OnGameError(m.Message, m.IsGameFull())
	default:
		return false
	}

	return true
}

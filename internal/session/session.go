// Package session binds a game stream to a live channel for the length of one game session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/client"
	"github.com/rocketscienceinc/tictactoe-session/internal/pkg/eventloop"
)

var ErrSessionBusy = errors.New("session is already started")

type State int32

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateEnding
)

func (that State) String() string {
	switch that {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	default:
		return fmt.Sprintf("state(%d)", int32(that))
	}
}

// Channel is a connected transport.
type Channel interface {
	Send(frame []byte) error
	Close() error
}

// Receiver gets the inbound side of a channel.
type Receiver interface {
	Deliver(frame []byte)
	Closed(err error)
}

// Connector opens channels. Connect may block; it is never called on the session loop.
type Connector interface {
	Connect(ctx context.Context, receiver Receiver) (Channel, error)
}

// Events reports session lifecycle changes. Calls come from the session loop.
type Events interface {
	OnSessionStarted()
	OnSessionStartFailed(err error)
	OnSessionEnded(err error)
}

type gameStream interface {
	Attach(channel client.Sender) error
	Detach()
	Join(name string) error
	Leave() error
	Deliver(frame []byte) error
}

// Session runs Idle -> Starting -> Active -> Ending -> Idle.
type Session struct {
	logger     *slog.Logger
	connector  Connector
	stream     gameStream
	events     Events
	playerName string

	loop  *eventloop.Loop
	state atomic.Int32

	// owned by the loop
	epoch         uint64
	channel       Channel
	cancelConnect context.CancelFunc
}

func New(logger *slog.Logger, connector Connector, stream gameStream, events Events, playerName string) *Session {
	return &Session{
		logger:     logger.With("component", "session"),
		connector:  connector,
		stream:     stream,
		events:     events,
		playerName: playerName,

		loop:          eventloop.New(64),
		cancelConnect: func() {},
	}
}

// Run processes lifecycle events until ctx is canceled, then releases the channel.
func (that *Session) Run(ctx context.Context) error {
	err := that.loop.Run(ctx)

	// the loop is gone, nothing races with the teardown below
	if that.channel != nil {
		that.stream.Detach()
		that.closeChannel()
	}

	that.cancelConnect()

	if err != nil {
		return fmt.Errorf("failed to run session loop: %w", err)
	}

	return nil
}

func (that *Session) State() State {
	return State(that.state.Load())
}

// Start begins connecting. The outcome is reported through Events.
func (that *Session) Start(ctx context.Context) error {
	var err error

	if doErr := that.loop.Do(ctx, func() { err = that.start() }); doErr != nil {
		return fmt.Errorf("failed to start session: %w", doErr)
	}

	return err
}

// End leaves the game and tears the session down. Ending an idle session does nothing.
func (that *Session) End(ctx context.Context) error {
	if err := that.loop.Do(ctx, that.end); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	return nil
}

func (that *Session) start() error {
	if that.State() != StateIdle {
		return fmt.Errorf("%w: %s", ErrSessionBusy, that.State())
	}

	that.epoch++
	epoch := that.epoch

	ctx, cancel := context.WithCancel(context.Background())
	that.cancelConnect = cancel
	that.setState(StateStarting)

	receiver := &epochReceiver{session: that, epoch: epoch}

	go func() {
		channel, err := that.connector.Connect(ctx, receiver)

		if postErr := that.loop.Post(func() { that.connected(epoch, channel, err) }); postErr != nil && channel != nil {
			_ = channel.Close()
		}
	}()

	return nil
}

func (that *Session) connected(epoch uint64, channel Channel, err error) {
	log := that.logger.With("method", "connected", "epoch", epoch)

	if epoch != that.epoch || that.State() != StateStarting {
		log.Info("late connect result ignored", "state", that.State())

		if channel != nil {
			if closeErr := channel.Close(); closeErr != nil {
				log.Warn("failed to close late channel", "error", closeErr)
			}
		}

		return
	}

	if err != nil {
		that.fail(log, fmt.Errorf("%w: failed to connect: %w", apperror.ErrChannelFailure, err))
		return
	}

	that.channel = channel

	if err = that.stream.Attach(channel); err != nil {
		that.closeChannel()
		that.fail(log, fmt.Errorf("failed to attach stream: %w", err))

		return
	}

	that.setState(StateActive)
	log.Info("session started")
	that.events.OnSessionStarted()

	if err = that.stream.Join(that.playerName); err != nil {
		log.Error("failed to join", "error", err)
		that.teardown(fmt.Errorf("%w: %w", apperror.ErrChannelFailure, err))
	}
}

func (that *Session) fail(log *slog.Logger, err error) {
	log.Error("session start failed", "error", err)

	that.cancelConnect()
	that.epoch++
	that.setState(StateIdle)
	that.events.OnSessionStartFailed(err)
}

func (that *Session) end() {
	log := that.logger.With("method", "end")

	switch that.State() {
	case StateStarting:
		log.Info("session ended while starting")

		that.cancelConnect()
		that.epoch++
		that.setState(StateIdle)
		that.events.OnSessionEnded(nil)
	case StateActive:
		that.setState(StateEnding)

		if err := that.stream.Leave(); err != nil {
			log.Warn("failed to send leave", "error", err)
		}

		that.teardown(nil)
	default:
	}
}

// teardown releases the stream and the channel unconditionally.
func (that *Session) teardown(cause error) {
	that.stream.Detach()
	that.closeChannel()
	that.cancelConnect()

	that.epoch++
	that.setState(StateIdle)

	that.logger.Info("session ended", "cause", cause)
	that.events.OnSessionEnded(cause)
}

func (that *Session) closeChannel() {
	if that.channel == nil {
		return
	}

	if err := that.channel.Close(); err != nil {
		that.logger.Warn("failed to close channel", "error", err)
	}

	that.channel = nil
}

func (that *Session) deliver(epoch uint64, frame []byte) {
	if epoch != that.epoch {
		return
	}

	if state := that.State(); state != StateStarting && state != StateActive {
		return
	}

	if err := that.stream.Deliver(frame); err != nil {
		that.logger.Warn("failed to deliver frame", "error", err)
	}
}

func (that *Session) closed(epoch uint64, err error) {
	if epoch != that.epoch {
		return
	}

	cause := fmt.Errorf("%w: channel closed", apperror.ErrChannelFailure)
	if err != nil {
		cause = fmt.Errorf("%w: %w", apperror.ErrChannelFailure, err)
	}

	switch that.State() {
	case StateStarting:
		that.fail(that.logger.With("method", "closed"), cause)
	case StateActive:
		that.teardown(cause)
	default:
	}
}

func (that *Session) setState(state State) {
	that.state.Store(int32(state))
}

// epochReceiver tags inbound events with the session epoch they belong to.
type epochReceiver struct {
	session *Session
	epoch   uint64
}

func (that *epochReceiver) Deliver(frame []byte) {
	_ = that.session.loop.Post(func() { that.session.deliver(that.epoch, frame) })
}

func (that *epochReceiver) Closed(err error) {
	_ = that.session.loop.Post(func() { that.session.closed(that.epoch, err) })
}

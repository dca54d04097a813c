package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/host"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-session/internal/session"
	"github.com/rocketscienceinc/tictactoe-session/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-session/testing/suite"
)

const waitFor = 5 * time.Second

type receiver struct {
	frames chan []byte
	closed chan error
}

func newReceiver() *receiver {
	return &receiver{frames: make(chan []byte, 16), closed: make(chan error, 1)}
}

func (that *receiver) Deliver(frame []byte) { that.frames <- frame }
func (that *receiver) Closed(err error)     { that.closed <- err }

func (that *receiver) next(t *testing.T, codec protocol.Codec) protocol.Message {
	t.Helper()

	select {
	case frame := <-that.frames:
		msg, err := codec.Decode(frame)
		require.NoError(t, err)

		return msg
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a frame")
	}

	return nil
}

func send(t *testing.T, channel session.Channel, codec protocol.Codec, msg protocol.Message) {
	t.Helper()

	frame, err := codec.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, channel.Send(frame))
}

type fixture struct {
	ctx    context.Context
	st     *suite.Suite
	codec  protocol.Codec
	dialer *Dialer

	cancel context.CancelFunc
	busErr chan error
}

// startBus serves a fresh host engine over the bus of a new suite.
func startBus(t *testing.T) *fixture {
	t.Helper()

	ctx, st := suite.New(t)
	codec := protocol.NewJSONCodec()
	engine := host.NewEngine(st.Logger, codec, usecase.NewGameManager(st.Logger), nil, 64)

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	go func() { _ = engine.Run(runCtx) }()

	bus := NewBus(st.Logger, st.Redis, engine, st.Prefix, 64)
	busErr := make(chan error, 1)
	go func() { busErr <- bus.Run(runCtx) }()

	// the host subscription has to exist before anyone opens a channel
	st.WaitForSubscribers(ctx, hostChannel(st.Prefix), 1)

	return &fixture{
		ctx:    ctx,
		st:     st,
		codec:  codec,
		dialer: NewDialer(st.Logger, st.Redis, st.Prefix),
		cancel: cancel,
		busErr: busErr,
	}
}

func (that *fixture) stop(t *testing.T) {
	t.Helper()

	that.cancel()

	select {
	case err := <-that.busErr:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("bus did not stop")
	}
}

// publishRaw plays a participant that never subscribes to its own channel.
func (that *fixture) publishRaw(t *testing.T, p packet) {
	t.Helper()

	payload, err := p.marshal()
	require.NoError(t, err)
	require.NoError(t, that.st.Redis.Publish(that.ctx, hostChannel(that.st.Prefix), payload).Err())
}

func TestBus(t *testing.T) {
	// Given: a host engine served over the bus
	f := startBus(t)
	codec := f.codec

	alice, bob := newReceiver(), newReceiver()

	aliceChannel, err := f.dialer.Connect(f.ctx, alice)
	require.NoError(t, err)

	bobChannel, err := f.dialer.Connect(f.ctx, bob)
	require.NoError(t, err)

	// When: both join over redis
	send(t, aliceChannel, codec, protocol.Join{Name: "Alice"})
	assert.Equal(t, protocol.BoardLayout{}, alice.next(t, codec))
	assert.Equal(t, protocol.JoinAck{Symbol: entity.PlayerX}, alice.next(t, codec))

	send(t, bobChannel, codec, protocol.Join{Name: "Bob"})
	assert.Equal(t, protocol.BoardLayout{}, bob.next(t, codec))
	assert.Equal(t, protocol.JoinAck{Symbol: entity.PlayerO, Opponent: protocol.Opponent("Alice")}, bob.next(t, codec))
	assert.Equal(t, protocol.JoinAck{Symbol: entity.PlayerX, Opponent: protocol.Opponent("Bob")}, alice.next(t, codec))

	// Then: moves are broadcast
	send(t, aliceChannel, codec, protocol.Move{Row: 0, Column: 0})
	moved := protocol.MoveBroadcast{Symbol: entity.PlayerX, Row: 0, Column: 0}
	assert.Equal(t, moved, alice.next(t, codec))
	assert.Equal(t, moved, bob.next(t, codec))

	// And: closing a channel abandons the game for the other player
	require.NoError(t, bobChannel.Close())
	assert.Equal(t, protocol.End{
		EndState:        entity.EndStateAbandoned,
		WinningLocation: entity.NoWinningLocation,
	}, alice.next(t, codec))

	require.ErrorIs(t, bobChannel.Send([]byte("late")), ErrBusClosed)
	require.NoError(t, aliceChannel.Close())

	f.stop(t)
}

func TestBus_VanishedParticipant(t *testing.T) {
	// Given: alice seated as X over the bus
	f := startBus(t)
	codec := f.codec

	alice := newReceiver()
	aliceChannel, err := f.dialer.Connect(f.ctx, alice)
	require.NoError(t, err)
	t.Cleanup(func() { _ = aliceChannel.Close() })

	send(t, aliceChannel, codec, protocol.Join{Name: "Alice"})
	alice.next(t, codec)
	alice.next(t, codec)

	// When: a participant that listens on nothing joins as O
	join, err := codec.Encode(protocol.Join{Name: "Ghost"})
	require.NoError(t, err)

	f.publishRaw(t, packet{Participant: "ghost", Type: packetOpen})
	f.publishRaw(t, packet{Participant: "ghost", Type: packetData, Frame: join})

	// Then: alice sees it join, and the replies nobody received abandon the game
	assert.Equal(t, protocol.JoinAck{Symbol: entity.PlayerX, Opponent: protocol.Opponent("Ghost")}, alice.next(t, codec))
	assert.Equal(t, protocol.End{
		EndState:        entity.EndStateAbandoned,
		WinningLocation: entity.NoWinningLocation,
	}, alice.next(t, codec))

	f.stop(t)
}

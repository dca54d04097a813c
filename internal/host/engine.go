// Package host runs the authoritative game for every connected participant.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/rocketscienceinc/tictactoe-session/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-session/internal/pkg/eventloop"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-session/internal/usecase"
)

var ErrUnknownParticipant = errors.New("unknown participant")

// Sender is the outbound half of a participant channel. Send must not block.
type Sender interface {
	Send(frame []byte) error
}

type gameManager interface {
	Connect(id string) []usecase.Outgoing
	Disconnect(id string) []usecase.Outgoing
	Handle(id string, msg protocol.Message) []usecase.Outgoing
}

// Engine feeds channel events into the game manager one at a time.
type Engine struct {
	logger  *slog.Logger
	codec   protocol.Codec
	manager gameManager
	metrics *metrics.Metrics

	loop *eventloop.Loop

	// owned by the loop
	senders map[string]Sender
}

func NewEngine(logger *slog.Logger, codec protocol.Codec, manager gameManager, m *metrics.Metrics, queueSize int) *Engine {
	if m == nil {
		m = metrics.New(nil)
	}

	return &Engine{
		logger:  logger.With("component", "host"),
		codec:   codec,
		manager: manager,
		metrics: m,

		loop:    eventloop.New(queueSize),
		senders: make(map[string]Sender),
	}
}

// Run processes channel events until ctx is canceled.
func (that *Engine) Run(ctx context.Context) error {
	that.logger.Info("host engine started", "codec", that.codec.Name())

	if err := that.loop.Run(ctx); err != nil {
		return fmt.Errorf("failed to run event loop: %w", err)
	}

	that.logger.Info("host engine stopped")

	return nil
}

func (that *Engine) Codec() protocol.Codec {
	return that.codec
}

// Connected registers a new participant channel.
func (that *Engine) Connected(id string, sender Sender) error {
	return that.loop.Post(func() {
		that.senders[id] = sender
		that.metrics.Participants.Set(float64(len(that.senders)))
		that.logger.Info("participant connected", "participant", id)

		that.dispatch(that.manager.Connect(id))
	})
}

// Deliver queues one inbound frame from participant id.
func (that *Engine) Deliver(id string, frame []byte) error {
	return that.loop.Post(func() {
		that.receive(id, frame)
	})
}

// Disconnected drops the participant. A seated player abandons an ongoing game.
func (that *Engine) Disconnected(id string) error {
	return that.loop.Post(func() {
		that.disconnect(id)
	})
}

func (that *Engine) receive(id string, frame []byte) {
	log := that.logger.With("method", "receive", "participant", id)

	if _, ok := that.senders[id]; !ok {
		log.Warn("frame from unknown participant dropped", "error", ErrUnknownParticipant)
		return
	}

	msg, err := that.codec.Decode(frame)
	if err != nil {
		that.metrics.MalformedFrames.Inc()
		log.Warn("malformed frame dropped", "error", err, "size", len(frame))

		return
	}

	that.metrics.MessagesReceived.WithLabelValues(string(msg.Kind())).Inc()
	log.Debug("message received", "kind", msg.Kind())

	that.dispatch(that.manager.Handle(id, msg))
}

func (that *Engine) disconnect(id string) {
	if _, ok := that.senders[id]; !ok {
		return
	}

	delete(that.senders, id)
	that.metrics.Participants.Set(float64(len(that.senders)))
	that.logger.Info("participant disconnected", "participant", id)

	that.dispatch(that.manager.Disconnect(id))
}

// dispatch sends a batch. Recipients whose send fails are disconnected after the batch
// and their channel is closed when it can be.
func (that *Engine) dispatch(out []usecase.Outgoing) {
	log := that.logger.With("method", "dispatch")

	var (
		failed  []string
		counted bool
	)

	for _, o := range out {
		if end, ok := o.Message.(protocol.End); ok && !counted {
			that.metrics.GamesFinished.WithLabelValues(string(end.EndState)).Inc()
			counted = true
		}

		sender, ok := that.senders[o.To]
		if !ok || slices.Contains(failed, o.To) {
			continue
		}

		frame, err := that.codec.Encode(o.Message)
		if err != nil {
			log.Error("failed to encode message", "kind", o.Message.Kind(), "error", err)
			continue
		}

		if err = sender.Send(frame); err != nil {
			that.metrics.SendFailures.Inc()
			log.Warn("failed to send message", "participant", o.To, "kind", o.Message.Kind(), "error", err)

			failed = append(failed, o.To)

			continue
		}

		that.metrics.MessagesSent.WithLabelValues(string(o.Message.Kind())).Inc()
	}

	for _, id := range failed {
		sender := that.senders[id]
		that.disconnect(id)

		if closer, ok := sender.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Debug("failed to close channel", "participant", id, "error", err)
			}
		}
	}
}

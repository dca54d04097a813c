package redisbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-session/internal/host"
)

var (
	ErrOutboxFull   = errors.New("bus outbox is full")
	ErrNoSubscriber = errors.New("nobody is subscribed")
)

type engine interface {
	Connected(id string, sender host.Sender) error
	Deliver(id string, frame []byte) error
	Disconnected(id string) error
}

type outgoing struct {
	channel string
	packet  packet
}

// Bus is the host side: it turns packets on the host channel into engine events
// and publishes replies to each participant's channel.
type Bus struct {
	logger *slog.Logger
	client *redis.Client
	engine engine
	prefix string

	outbox chan outgoing
}

func NewBus(logger *slog.Logger, client *redis.Client, engine engine, prefix string, outboxSize int) *Bus {
	if outboxSize < 1 {
		outboxSize = 1
	}

	return &Bus{
		logger: logger.With("component", "redisbus"),
		client: client,
		engine: engine,
		prefix: prefix,

		outbox: make(chan outgoing, outboxSize),
	}
}

// Run subscribes to the host channel and serves participants until ctx is canceled.
func (that *Bus) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")

	pubsub := that.client.Subscribe(ctx, hostChannel(that.prefix))
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Warn("failed to close subscription", "error", err)
		}
	}()

	// wait for the subscription to be confirmed before anyone can miss a packet
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", hostChannel(that.prefix), err)
	}

	log.Info("redis bus started", "channel", hostChannel(that.prefix))

	go that.publishLoop(ctx)

	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			log.Info("redis bus stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("%w: subscription channel closed", ErrBusClosed)
			}

			that.handle(msg.Payload)
		}
	}
}

func (that *Bus) handle(payload string) {
	log := that.logger.With("method", "handle")

	p, err := unmarshalPacket(payload)
	if err != nil {
		log.Warn("packet dropped", "error", err)
		return
	}

	switch p.Type {
	case packetOpen:
		err = that.engine.Connected(p.Participant, &remote{bus: that, participant: p.Participant})
	case packetData:
		err = that.engine.Deliver(p.Participant, p.Frame)
	case packetClose:
		err = that.engine.Disconnected(p.Participant)
	}

	if err != nil {
		log.Error("failed to pass packet to the engine", "participant", p.Participant, "type", p.Type, "error", err)
	}
}

func (that *Bus) publishLoop(ctx context.Context) {
	log := that.logger.With("method", "publishLoop")

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-that.outbox:
			payload, err := out.packet.marshal()
			if err != nil {
				log.Error("failed to marshal packet", "error", err)
				continue
			}

			if err = that.publish(ctx, out.channel, payload); err != nil {
				log.Warn("failed to publish", "participant", out.packet.Participant, "error", err)

				if err = that.engine.Disconnected(out.packet.Participant); err != nil {
					log.Error("failed to disconnect participant", "error", err)
				}
			}
		}
	}
}

// publish fails when nobody listens on channel, which means the participant is gone
// without having sent a close packet.
func (that *Bus) publish(ctx context.Context, channel, payload string) error {
	receivers, err := that.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	if receivers == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscriber, channel)
	}

	return nil
}

// remote is the host.Sender of one bus participant.
type remote struct {
	bus         *Bus
	participant string
}

func (that *remote) Send(frame []byte) error {
	out := outgoing{
		channel: clientChannel(that.bus.prefix, that.participant),
		packet:  packet{Participant: that.participant, Type: packetData, Frame: frame},
	}

	select {
	case that.bus.outbox <- out:
		return nil
	default:
		return ErrOutboxFull
	}
}

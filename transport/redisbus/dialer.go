package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-session/internal/session"
)

const publishTimeout = 5 * time.Second

// Dialer is the participant side of the bus.
type Dialer struct {
	logger *slog.Logger
	client *redis.Client
	prefix string
}

func NewDialer(logger *slog.Logger, client *redis.Client, prefix string) *Dialer {
	return &Dialer{
		logger: logger.With("component", "redisbus_dialer"),
		client: client,
		prefix: prefix,
	}
}

func (that *Dialer) Connect(ctx context.Context, receiver session.Receiver) (session.Channel, error) {
	id := uuid.NewString()
	log := that.logger.With("method", "Connect", "participant", id)

	pubsub := that.client.Subscribe(ctx, clientChannel(that.prefix, id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	c := &channel{
		client:      that.client,
		pubsub:      pubsub,
		hostChannel: hostChannel(that.prefix),
		participant: id,
		done:        make(chan struct{}),
	}

	if err := c.publish(packetOpen, nil); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	go c.readLoop(log, receiver)

	log.Info("connected to host")

	return c, nil
}

type channel struct {
	client      *redis.Client
	pubsub      *redis.PubSub
	hostChannel string
	participant string

	done chan struct{}
	once sync.Once
}

func (that *channel) Send(frame []byte) error {
	select {
	case <-that.done:
		return ErrBusClosed
	default:
	}

	return that.publish(packetData, frame)
}

// Close tells the host the participant left and drops the subscription.
func (that *channel) Close() error {
	var err error

	that.once.Do(func() {
		close(that.done)

		publishErr := that.publish(packetClose, nil)
		closeErr := that.pubsub.Close()

		if publishErr != nil {
			err = publishErr
		} else if closeErr != nil {
			err = fmt.Errorf("failed to close subscription: %w", closeErr)
		}
	})

	return err
}

func (that *channel) publish(typ packetType, frame []byte) error {
	payload, err := packet{Participant: that.participant, Type: typ, Frame: frame}.marshal()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err = that.client.Publish(ctx, that.hostChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s packet: %w", typ, err)
	}

	return nil
}

func (that *channel) readLoop(log *slog.Logger, receiver session.Receiver) {
	for msg := range that.pubsub.Channel() {
		p, err := unmarshalPacket(msg.Payload)
		if err != nil {
			log.Warn("packet dropped", "error", err)
			continue
		}

		if p.Type == packetData {
			receiver.Deliver(p.Frame)
		}
	}

	select {
	case <-that.done:
	default:
		receiver.Closed(ErrBusClosed)
	}
}

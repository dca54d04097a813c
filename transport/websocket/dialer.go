package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-session/internal/session"
)

// Dialer connects a game session to a host over websocket.
type Dialer struct {
	logger *slog.Logger
	url    string

	binary     bool
	outboxSize int
	dialer     *websocket.Dialer
}

func NewDialer(logger *slog.Logger, url string, binary bool, outboxSize int) *Dialer {
	return &Dialer{
		logger: logger.With("component", "websocket_dialer"),
		url:    url,

		binary:     binary,
		outboxSize: outboxSize,
		dialer:     websocket.DefaultDialer,
	}
}

func (that *Dialer) Connect(ctx context.Context, receiver session.Receiver) (session.Channel, error) {
	log := that.logger.With("method", "Connect", "url", that.url)

	conn, resp, err := that.dialer.DialContext(ctx, that.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", that.url, err)
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := newConnection(conn, that.binary, that.outboxSize)

	go func() {
		if writeErr := c.writeLoop(); writeErr != nil && !c.closed() {
			log.Warn("writer stopped", "error", writeErr)
			_ = c.Close()
		}
	}()

	go func() {
		readErr := c.readLoop(receiver.Deliver)
		if c.closed() {
			return
		}

		_ = c.Close()
		receiver.Closed(readErr)
	}()

	log.Info("connected to host")

	return c, nil
}

package websocket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var (
	ErrOutboxFull       = errors.New("outbox is full")
	ErrConnectionClosed = errors.New("connection is closed")
)

// connection wraps a websocket with a buffered outbox drained by its own writer goroutine,
// so Send never blocks the caller.
type connection struct {
	conn        *websocket.Conn
	messageType int

	outbox chan []byte
	done   chan struct{}
	once   sync.Once

	// closed by writeLoop once the outbox is flushed
	flushed chan struct{}
}

func newConnection(conn *websocket.Conn, binary bool, outboxSize int) *connection {
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}

	if outboxSize < 1 {
		outboxSize = 1
	}

	conn.SetReadLimit(maxMessageSize)

	return &connection{
		conn:        conn,
		messageType: messageType,

		outbox:  make(chan []byte, outboxSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
}

func (that *connection) Send(frame []byte) error {
	select {
	case <-that.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case that.outbox <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close lets the writer flush the outbox and send the close frame, then closes the socket.
// It does not wait for the reader. writeLoop must be running.
func (that *connection) Close() error {
	var err error

	that.once.Do(func() {
		close(that.done)

		select {
		case <-that.flushed:
		case <-time.After(writeWait):
		}

		err = that.conn.Close()
	})

	if err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}

	return nil
}

func (that *connection) closed() bool {
	select {
	case <-that.done:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbox and keeps the peer alive with pings. Once Close is called
// it writes what is still queued, says goodbye and returns.
func (that *connection) writeLoop() error {
	defer close(that.flushed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-that.done:
			return that.flush()
		case frame := <-that.outbox:
			if err := that.write(that.messageType, frame); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}
		case <-ticker.C:
			if err := that.write(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("failed to write ping: %w", err)
			}
		}
	}
}

func (that *connection) flush() error {
	for {
		select {
		case frame := <-that.outbox:
			if err := that.write(that.messageType, frame); err != nil {
				return fmt.Errorf("failed to flush message: %w", err)
			}
		default:
			closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := that.write(websocket.CloseMessage, closeFrame); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				return fmt.Errorf("failed to write close frame: %w", err)
			}

			return nil
		}
	}
}

func (that *connection) write(messageType int, data []byte) error {
	_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return that.conn.WriteMessage(messageType, data)
}

// readLoop hands every data message to deliver until the socket fails.
func (that *connection) readLoop(deliver func(frame []byte)) error {
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("failed to read message: %w", err)
		}

		deliver(frame)
	}
}

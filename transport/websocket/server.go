package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-session/internal/host"
)

type engine interface {
	Connected(id string, sender host.Sender) error
	Deliver(id string, frame []byte) error
	Disconnected(id string) error
}

// Server accepts websocket participants and feeds them to the host engine.
type Server struct {
	logger *slog.Logger
	engine engine

	binary     bool
	outboxSize int
	upgrader   websocket.Upgrader
}

func New(logger *slog.Logger, engine engine, binary bool, outboxSize int) *Server {
	return &Server{
		logger: logger.With("component", "websocket"),
		engine: engine,

		binary:     binary,
		outboxSize: outboxSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start - starts WebSocket server and stops it when ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.upgradeToWebSocket)

	return mux
}

// upgradeToWebSocket - upgrades the connection and serves it until either side closes it.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	id := uuid.NewString()
	log := that.logger.With("method", "upgradeToWebSocket", "participant", id)

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := newConnection(conn, that.binary, that.outboxSize)
	defer func() {
		if err = c.Close(); err != nil {
			log.Debug("failed to close connection", "error", err)
		}
	}()

	go func() {
		if writeErr := c.writeLoop(); writeErr != nil && !c.closed() {
			log.Warn("writer stopped", "error", writeErr)
			_ = c.Close()
		}
	}()

	if err = that.engine.Connected(id, c); err != nil {
		log.Error("failed to register participant", "error", err)
		return
	}

	log.Info("WebSocket connection established")

	readErr := c.readLoop(func(frame []byte) {
		if deliverErr := that.engine.Deliver(id, frame); deliverErr != nil {
			log.Error("failed to deliver frame", "error", deliverErr)
		}
	})
	if readErr != nil && !c.closed() {
		log.Warn("reader stopped", "error", readErr)
	}

	if err = that.engine.Disconnected(id); err != nil {
		log.Error("failed to unregister participant", "error", err)
	}

	log.Info("WebSocket connection closed")
}

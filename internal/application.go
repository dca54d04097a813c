package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-session/internal/config"
	"github.com/rocketscienceinc/tictactoe-session/internal/host"
	"github.com/rocketscienceinc/tictactoe-session/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-session/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-session/transport/redisbus"
	"github.com/rocketscienceinc/tictactoe-session/transport/rest"
	"github.com/rocketscienceinc/tictactoe-session/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-baseCtx.Done():
		}
	}()

	codec, err := protocol.NewCodec(conf.Codec)
	if err != nil {
		return fmt.Errorf("invalid codec: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := host.NewEngine(logger, codec, usecase.NewGameManager(logger), metrics.New(registry), conf.OutboxSize)

	group, ctx := errgroup.WithContext(baseCtx)

	group.Go(func() error {
		return engine.Run(ctx)
	})

	// run HTTP server
	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)

		if httpErr := rest.Start(ctx, logger, conf.HTTPPort, registry); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}

		return nil
	})

	// run Websocket server
	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort, "codec", codec.Name())

		wsServer := websocket.New(logger, engine, codec.Binary(), conf.OutboxSize)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			return fmt.Errorf("WebSocket server error: %w", wsErr)
		}

		return nil
	})

	if conf.Redis.Enabled {
		redisClient, redisErr := connectRedis(ctx, conf.Redis)
		if redisErr != nil {
			cancel()
			_ = group.Wait()

			return redisErr
		}

		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("could not close redis client", "error", closeErr)
			}
		}()

		group.Go(func() error {
			bus := redisbus.NewBus(logger, redisClient, engine, conf.Redis.ChannelPrefix, conf.OutboxSize)
			if busErr := bus.Run(ctx); busErr != nil {
				return fmt.Errorf("redis bus error: %w", busErr)
			}

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

func connectRedis(ctx context.Context, conf config.Redis) (*redis.Client, error) {
	addr := conf.GetRedisAddr()
	if conf.Host == "" {
		return nil, ErrAddrNotFound
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	return client, nil
}

// Package suite runs integration tests against a throwaway redis started with dockertest.
package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	containerTTL  = 120 // seconds
	startupWait   = 120 * time.Second
	subscribeWait = 5 * time.Second
)

const (
	redisImage = "redis"
	redisTag   = "alpine"
	redisPort  = "6379/tcp"
)

// Suite is a test environment with its own redis and channel namespace.
type Suite struct {
	*testing.T
	Logger *slog.Logger

	Redis *redis.Client

	// fresh per suite, so pub/sub channels of different tests never meet
	Prefix string
}

// New starts redis and returns a connected client. The test is skipped when docker is not reachable.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startupWait)
	t.Cleanup(cancel)

	pool := dockerPool(t)
	addr := startRedis(t, pool)

	return ctx, &Suite{
		T:      t,
		Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Redis:  connectRedis(ctx, t, pool, addr),
		Prefix: "tictactoe-" + uuid.NewString(),
	}
}

// WaitForSubscribers blocks until channel has exactly n subscribers.
func (that *Suite) WaitForSubscribers(ctx context.Context, channel string, n int64) {
	that.Helper()

	require.Eventually(that.T, func() bool {
		counts, err := that.Redis.PubSubNumSub(ctx, channel).Result()
		return err == nil && counts[channel] == n
	}, subscribeWait, 20*time.Millisecond, "channel %s never reached %d subscribers", channel, n)
}

func dockerPool(t *testing.T) *dockertest.Pool {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	pool.MaxWait = startupWait

	return pool
}

// startRedis runs the container and returns its host address. It is purged when the test ends.
func startRedis(t *testing.T, pool *dockertest.Pool) string {
	t.Helper()

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start redis: %v", err)
	}

	t.Cleanup(func() {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			t.Errorf("could not purge redis: %v", purgeErr)
		}
	})

	// docker hard kills the container if the cleanup never runs
	_ = resource.Expire(containerTTL)

	return resource.GetHostPort(redisPort)
}

func connectRedis(ctx context.Context, t *testing.T, pool *dockertest.Pool, addr string) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	// redis may still be booting
	if err := pool.Retry(func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		t.Fatalf("could not connect to redis: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush redis: %v", err)
	}

	return client
}

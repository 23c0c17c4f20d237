// Package redisfan publishes CDC events to a Redis channel for
// out-of-process consumers. It is an optional tap: failures are counted and
// logged, never surfaced to mutators. Ping backs the /health endpoint's
// redisReachable field.
package redisfan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/errors"
)

// Channel is the Redis pub/sub channel events are published to.
const Channel = "codegraph:events"

const publishTimeout = 2 * time.Second

// Fan publishes events to Redis.
type Fan struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to the Redis at url (redis://host:port/db) and verifies the
// connection with a ping.
func New(ctx context.Context, url string, logger *zap.Logger) (*Fan, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.KindInternal, "connect to redis")
	}
	return &Fan{client: client, logger: logger}, nil
}

// Publish sends one event as JSON to the events channel.
func (f *Fan) Publish(evt domainevents.ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal event")
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := f.client.Publish(ctx, Channel, data).Err(); err != nil {
		return errors.Wrap(err, errors.KindInternal, "publish event to redis")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (f *Fan) Ping(ctx context.Context) bool {
	return f.client.Ping(ctx).Err() == nil
}

// Close releases the client.
func (f *Fan) Close() error {
	return f.client.Close()
}

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/vaultscope/internal/events"
)

// Consumer pulls activity events from a Redis stream into the event
// store. Hooks running on other machines publish there instead of hitting
// the HTTP API directly. Optional; the dashboard runs without it.
type Consumer struct {
	rdb    *redis.Client
	store  *events.Store
	logger *zap.Logger
}

const eventStream = "vaultscope:events"

// New connects to Redis and returns a consumer feeding the given store.
func New(redisURL string, store *events.Store, logger *zap.Logger) (*Consumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Consumer{rdb: rdb, store: store, logger: logger}, nil
}

// Run reads the stream until ctx is done. New entries only; history is
// the event store's concern.
func (c *Consumer) Run(ctx context.Context) {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results, err := c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{eventStream, lastID},
			Count:   10,
			Block:   time.Second * 2,
		}).Result()

		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				return
			}
			if err != redis.Nil {
				c.logger.Debug("stream read failed", zap.Error(err))
			}
			continue
		}

		for _, r := range results {
			for _, msg := range r.Messages {
				lastID = msg.ID
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				var ev events.Event
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					c.logger.Warn("malformed stream event", zap.String("id", msg.ID), zap.Error(err))
					continue
				}
				c.store.Append(ev)
			}
		}
	}
}

// Publish pushes one event onto the stream. Used by tests and by remote
// hook deployments.
func (c *Consumer) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", eventStream, err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (c *Consumer) Close() error {
	return c.rdb.Close()
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arrayd/util"
)

// DefaultRedisChannel is the pub/sub channel events are published on.
const DefaultRedisChannel = "arrayd:updates"

// redisPublisher is the slice of the go-redis client we use.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher forwards hub events to a Redis channel as JSON.
type RedisPublisher struct {
	client  redisPublisher
	channel string
	logger  *util.Logger
}

// NewRedisPublisher connects to the Redis server at addr and verifies
// it answers PING.
func NewRedisPublisher(addr, channel string, logger *util.Logger) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return newRedisPublisher(rdb, channel, logger), nil
}

func newRedisPublisher(client redisPublisher, channel string, logger *util.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish sends one event.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Run publishes every event from sub until ctx is done or the
// subscription closes.  Publish failures are logged and skipped.
func (p *RedisPublisher) Run(ctx context.Context, sub *Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := p.Publish(pctx, e); err != nil {
				p.logger.Warn("redis publish %q: %v", e.Name, err)
			}
			cancel()
		}
	}
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

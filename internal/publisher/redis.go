package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"PriceTracker/internal/models"
)

// RedisPublisher appends price changes to a Redis stream. The stream is
// trimmed approximately to maxLen on every append.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, stream string, maxLen int64) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish adds the change to the stream. The JSON document goes under
// "change"; listing_id is repeated as a plain field so consumers can filter
// without decoding.
func (p *RedisPublisher) Publish(ctx context.Context, change models.PriceChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode price change: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"listing_id": strconv.FormatInt(change.ListingID, 10),
			"change":     string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

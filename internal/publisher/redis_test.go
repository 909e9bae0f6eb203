package publisher

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceTracker/internal/models"
)

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping test")
	}
	ctx := context.Background()
	stream := "test_price_changes"

	publisher := NewRedisPublisher(addr, 0, stream, 100)
	defer publisher.Close()
	if err := publisher.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Del(ctx, stream).Err())

	previous := 49.99
	change := models.PriceChange{
		ListingID:     1,
		DeviceID:      10,
		SellerID:      2,
		Price:         44.99,
		InStock:       true,
		PreviousPrice: &previous,
		ValidFrom:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.Publish(ctx, change))

	messages, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "1", messages[0].Values["listing_id"])

	var got models.PriceChange
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["change"].(string)), &got))
	assert.Equal(t, change.Price, got.Price)
	require.NotNil(t, got.PreviousPrice)
	assert.Equal(t, previous, *got.PreviousPrice)
	assert.True(t, got.ValidFrom.Equal(change.ValidFrom))
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), models.PriceChange{ListingID: 1}))
	assert.NoError(t, p.Close())
}

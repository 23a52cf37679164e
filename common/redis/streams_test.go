package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrywg/mtconnect-agent/common/config"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishAndReadStream(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "mtconnect:ingest", "agent"))
	// 重复创建不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "mtconnect:ingest", "agent"))

	_, err := PublishToStream(ctx, client, "mtconnect:ingest", 0, map[string]interface{}{
		"device": "000",
		"line":   "TIME|line|204",
		"seq":    uint64(7),
	})
	require.NoError(t, err)

	msgs, err := ReadFromStream(ctx, client, "mtconnect:ingest", "agent", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "000", msgs[0].Values["device"])
	assert.Equal(t, "TIME|line|204", msgs[0].Values["line"])
	assert.Equal(t, "7", msgs[0].Values["seq"])

	require.NoError(t, Ack(ctx, client, "mtconnect:ingest", "agent", msgs[0].ID))

	msgs, err = ReadFromStream(ctx, client, "mtconnect:ingest", "agent", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPublishJSONToStream(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	_, err := PublishJSONToStream(ctx, client, "mtconnect:observations", 0, map[string]string{"dataItemId": "x1"})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, "mtconnect:observations", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &decoded))
	assert.Equal(t, "x1", decoded["dataItemId"])
	assert.NotEmpty(t, entries[0].Values["timestamp"])
}

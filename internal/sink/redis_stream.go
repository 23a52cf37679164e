package sink

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	rediscommon "github.com/harrywg/mtconnect-agent/common/redis"
	"github.com/harrywg/mtconnect-agent/internal/models"
)

// RedisStreamSink 每条观测值作为一条 JSON 消息写入 Redis Stream
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink 创建 Redis Stream 输出
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string { return "redis_stream" }

func (s *RedisStreamSink) WriteBatch(ctx context.Context, batch []models.Observation) error {
	for i := range batch {
		if _, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, &batch[i]); err != nil {
			return fmt.Errorf("failed to publish observation %d: %w", batch[i].Sequence, err)
		}
	}
	return nil
}

package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	rediscommon "github.com/harrywg/mtconnect-agent/common/redis"
	"github.com/harrywg/mtconnect-agent/internal/adapter"
	"github.com/harrywg/mtconnect-agent/internal/config"
)

// StreamConsumer Redis Streams 输入：字段 device + line，或 data 为 JSON {"device","lines"}
type StreamConsumer struct {
	client       *redis.Client
	stream       string
	group        string
	consumerName string
	batchSize    int64
	block        time.Duration
	router       *lineRouter
	logger       *zap.Logger
}

type streamPayload struct {
	Device string   `json:"device"`
	Line   string   `json:"line"`
	Lines  []string `json:"lines"`
}

// NewStreamConsumer 创建 Streams 消费者，未配置消费者名时使用随机 uuid
func NewStreamConsumer(cfg *config.Config, client *redis.Client, lookup adapter.ItemLookup, ingestor Ingestor, logger *zap.Logger) *StreamConsumer {
	name := cfg.Ingest.ConsumerName
	if name == "" {
		name = "mtconnect-agent-" + uuid.New().String()
	}
	batch := cfg.Ingest.BatchSize
	if batch <= 0 {
		batch = 100
	}
	block := cfg.Ingest.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	return &StreamConsumer{
		client:       client,
		stream:       cfg.Ingest.Stream,
		group:        cfg.Ingest.ConsumerGroup,
		consumerName: name,
		batchSize:    batch,
		block:        block,
		router:       newLineRouter(lookup, ingestor, logger),
		logger:       logger,
	}
}

// Start 创建消费者组并循环消费，失败时指数退避
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.client, c.stream, c.group); err != nil {
		return err
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.group),
		zap.String("consumer_name", c.consumerName),
	)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.String("stream", c.stream),
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

// consumeOnce 读取一批消息，处理后 ACK；返回处理的消息数
func (c *StreamConsumer) consumeOnce(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadFromStream(ctx, c.client, c.stream, c.group, c.consumerName, c.batchSize, c.block)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", c.stream, err)
	}

	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := c.processMessage(msg); err != nil {
			// 继续处理下一条消息，不中断
			c.logger.Error("Failed to process message",
				zap.String("stream", c.stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
		ids = append(ids, msg.ID)
	}
	if err := rediscommon.Ack(ctx, c.client, c.stream, c.group, ids...); err != nil {
		return len(messages), fmt.Errorf("failed to ack messages: %w", err)
	}
	return len(messages), nil
}

func (c *StreamConsumer) processMessage(msg rediscommon.StreamMessage) error {
	p := streamPayload{
		Device: fieldString(msg.Values, "device"),
		Line:   fieldString(msg.Values, "line"),
	}
	if data := fieldString(msg.Values, "data"); data != "" {
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	lines := p.Lines
	if p.Line != "" {
		lines = append([]string{p.Line}, lines...)
	}
	if len(lines) == 0 {
		return fmt.Errorf("message has no shdr line")
	}

	_, err := c.router.feed(p.Device, strings.Join(lines, "\n"))
	return err
}

func fieldString(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

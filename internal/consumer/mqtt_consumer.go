package consumer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	mqttcommon "github.com/harrywg/mtconnect-agent/common/mqtt"
	"github.com/harrywg/mtconnect-agent/internal/adapter"
)

// Subscriber MQTT 订阅接口，由 mqttcommon.Client 实现
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 订阅 SHDR 主题，主题格式: mtconnect/{device}/shdr
type MQTTConsumer struct {
	client Subscriber
	topic  string
	qos    byte
	router *lineRouter
	logger *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(client Subscriber, topic string, qos byte, lookup adapter.ItemLookup, ingestor Ingestor, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client: client,
		topic:  topic,
		qos:    qos,
		router: newLineRouter(lookup, ingestor, logger),
		logger: logger,
	}
}

// Start 订阅主题并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to shdr topic: %w", err)
	}
	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()

	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 设备标识取主题第二段，payload 可包含多行
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[1] == "" {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	device := parts[1]

	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.String("device", device),
		zap.Int("payload_size", len(payload)),
	)

	if _, err := c.router.feed(device, string(payload)); err != nil {
		return fmt.Errorf("failed to ingest message for %s: %w", device, err)
	}
	return nil
}

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Publisher MQTT 发布接口，由 mqttcommon.Client 实现
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 按设备分组，把一批观测值作为 JSON 数组发布
// topic 中的 {device} 替换为设备 uuid
type MQTTSink struct {
	client Publisher
	topic  string
	qos    byte
}

// NewMQTTSink 创建 MQTT 输出
func NewMQTTSink(client Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, qos: qos}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) WriteBatch(ctx context.Context, batch []models.Observation) error {
	var order []string
	groups := make(map[string][]models.Observation)
	for _, obs := range batch {
		if _, ok := groups[obs.DeviceKey]; !ok {
			order = append(order, obs.DeviceKey)
		}
		groups[obs.DeviceKey] = append(groups[obs.DeviceKey], obs)
	}

	for _, device := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(groups[device])
		if err != nil {
			return fmt.Errorf("failed to marshal observations: %w", err)
		}
		topic := strings.ReplaceAll(s.topic, "{device}", device)
		if err := s.client.Publish(topic, s.qos, false, payload); err != nil {
			return err
		}
	}
	return nil
}

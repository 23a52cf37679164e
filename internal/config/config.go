package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/harrywg/mtconnect-agent/common/config"
)

// Config mtconnect-agent 配置，全部来自环境变量
type Config struct {
	Agent struct {
		DevicesFile        string
		BufferSize         int
		AssetBufferSize    int
		DefaultSampleCount int
		MaxSampleCount     int
	}

	HTTP struct {
		Addr     string
		AllowPut bool
	}

	// SHDR TCP 适配器
	Adapter struct {
		Enabled           bool
		Addr              string
		Device            string
		ReconnectInterval time.Duration
		ReadTimeout       time.Duration
	}

	MQTT struct {
		Enabled bool
		Topic   string
		commoncfg.MQTTConfig
	}

	Redis commoncfg.RedisConfig

	// Redis Streams 输入
	Ingest struct {
		Enabled       bool
		Stream        string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
		Block         time.Duration
	}

	// 观测值输出
	Sink struct {
		QueueSize    int
		RedisEnabled bool
		RedisStream  string
		RedisMaxLen  int64

		MQTTEnabled bool
		MQTTTopic   string
	}

	Historian struct {
		Enabled  bool
		Database commoncfg.DatabaseConfig
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Agent.DevicesFile = getEnv("AGENT_DEVICES_FILE", "configs/devices.yaml")
	cfg.Agent.BufferSize = parseInt(getEnv("AGENT_BUFFER_SIZE", "131072"), 131072)
	cfg.Agent.AssetBufferSize = parseInt(getEnv("AGENT_ASSET_BUFFER_SIZE", "1024"), 1024)
	cfg.Agent.DefaultSampleCount = parseInt(getEnv("AGENT_SAMPLE_COUNT", "100"), 100)
	cfg.Agent.MaxSampleCount = parseInt(getEnv("AGENT_MAX_SAMPLE_COUNT", "10000"), 10000)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":5000")
	cfg.HTTP.AllowPut = getEnv("HTTP_ALLOW_PUT", "true") == "true"

	cfg.Adapter.Enabled = getEnv("ADAPTER_ENABLED", "false") == "true"
	cfg.Adapter.Addr = getEnv("ADAPTER_ADDR", "localhost:7878")
	cfg.Adapter.Device = getEnv("ADAPTER_DEVICE", "")
	cfg.Adapter.ReconnectInterval = parseDuration(getEnv("ADAPTER_RECONNECT_INTERVAL", "1s"), time.Second)
	cfg.Adapter.ReadTimeout = parseDuration(getEnv("ADAPTER_READ_TIMEOUT", "0s"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "mtconnect/+/shdr")
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "mtconnect-agent"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Ingest.Enabled = getEnv("REDIS_INGEST_ENABLED", "false") == "true"
	cfg.Ingest.Stream = getEnv("REDIS_INGEST_STREAM", "mtconnect:ingest")
	cfg.Ingest.ConsumerGroup = getEnv("REDIS_CONSUMER_GROUP", "mtconnect-agent")
	cfg.Ingest.ConsumerName = getEnv("REDIS_CONSUMER_NAME", "")
	cfg.Ingest.BatchSize = int64(parseInt(getEnv("REDIS_INGEST_BATCH_SIZE", "100"), 100))
	cfg.Ingest.Block = parseDuration(getEnv("REDIS_INGEST_BLOCK", "5s"), 5*time.Second)

	cfg.Sink.QueueSize = parseInt(getEnv("SINK_QUEUE_SIZE", "1024"), 1024)
	cfg.Sink.RedisEnabled = getEnv("REDIS_SINK_ENABLED", "false") == "true"
	cfg.Sink.RedisStream = getEnv("REDIS_OBSERVATION_STREAM", "mtconnect:observations")
	cfg.Sink.RedisMaxLen = int64(parseInt(getEnv("REDIS_OBSERVATION_MAXLEN", "100000"), 100000))

	cfg.Sink.MQTTEnabled = getEnv("MQTT_PUBLISH_ENABLED", "false") == "true"
	cfg.Sink.MQTTTopic = getEnv("MQTT_PUBLISH_TOPIC", "mtconnect/{device}/observations")

	cfg.Historian.Enabled = getEnv("HISTORIAN_ENABLED", "false") == "true"
	cfg.Historian.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "mtconnect",
		SSLMode:  "disable",
	}
	cfg.Historian.Database.LoadFromEnv("DB")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Agent.BufferSize < 1 {
		return fmt.Errorf("AGENT_BUFFER_SIZE must be positive, got %d", c.Agent.BufferSize)
	}
	if c.Agent.AssetBufferSize < 1 {
		return fmt.Errorf("AGENT_ASSET_BUFFER_SIZE must be positive, got %d", c.Agent.AssetBufferSize)
	}
	if c.Agent.DefaultSampleCount < 1 || c.Agent.MaxSampleCount < c.Agent.DefaultSampleCount {
		return fmt.Errorf("invalid sample count limits: default=%d max=%d", c.Agent.DefaultSampleCount, c.Agent.MaxSampleCount)
	}
	if c.Sink.QueueSize < 1 {
		return fmt.Errorf("SINK_QUEUE_SIZE must be positive, got %d", c.Sink.QueueSize)
	}
	if c.Agent.DevicesFile == "" {
		return fmt.Errorf("AGENT_DEVICES_FILE is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

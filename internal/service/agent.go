package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrywg/mtconnect-agent/common/database"
	mqttcommon "github.com/harrywg/mtconnect-agent/common/mqtt"
	rediscommon "github.com/harrywg/mtconnect-agent/common/redis"
	"github.com/harrywg/mtconnect-agent/internal/config"
	"github.com/harrywg/mtconnect-agent/internal/consumer"
	httpapi "github.com/harrywg/mtconnect-agent/internal/http"
	"github.com/harrywg/mtconnect-agent/internal/metrics"
	"github.com/harrywg/mtconnect-agent/internal/query"
	"github.com/harrywg/mtconnect-agent/internal/repository"
	"github.com/harrywg/mtconnect-agent/internal/schema"
	"github.com/harrywg/mtconnect-agent/internal/sink"
	"github.com/harrywg/mtconnect-agent/internal/store"
)

// runner 随服务启动的后台组件
type runner struct {
	name  string
	start func(ctx context.Context) error
}

// AgentService mtconnect-agent 服务：设备目录、存储、查询、输入、输出和 HTTP
type AgentService struct {
	config      *config.Config
	logger      *zap.Logger
	catalog     *schema.Catalog
	store       *store.Store
	engine      *query.Engine
	dispatcher  *sink.Dispatcher
	registry    *prometheus.Registry
	router      *httpapi.Router
	server      *Server
	db          *sql.DB
	history     *repository.ObservationRepository
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	runners     []runner

	mu      sync.Mutex
	running chan struct{}
}

// NewAgentService 创建服务并按配置连接外部依赖
func NewAgentService(cfg *config.Config, logger *zap.Logger) (*AgentService, error) {
	// 加载设备描述
	catalog, err := schema.Open(context.Background(), cfg.Agent.DevicesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	st := store.NewStore(catalog, store.Options{
		BufferSize:      cfg.Agent.BufferSize,
		AssetBufferSize: cfg.Agent.AssetBufferSize,
	}, logger)
	engine := query.NewEngine(catalog, st, query.Options{
		DefaultSampleCount: cfg.Agent.DefaultSampleCount,
		MaxSampleCount:     cfg.Agent.MaxSampleCount,
	})

	s := &AgentService{
		config:  cfg,
		logger:  logger,
		catalog: catalog,
		store:   st,
		engine:  engine,
	}
	if err := s.connect(); err != nil {
		s.closeClients()
		return nil, err
	}

	// 输出
	var sinks []sink.Sink
	if cfg.Sink.RedisEnabled {
		sinks = append(sinks, sink.NewRedisStreamSink(s.redisClient, cfg.Sink.RedisStream, cfg.Sink.RedisMaxLen))
	}
	if cfg.Sink.MQTTEnabled {
		sinks = append(sinks, sink.NewMQTTSink(s.mqttClient, cfg.Sink.MQTTTopic, cfg.MQTT.QoS))
	}
	if s.history != nil {
		sinks = append(sinks, sink.NewHistorianSink(s.history, st.Stats().InstanceID))
	}
	s.dispatcher = sink.NewDispatcher(cfg.Sink.QueueSize, logger, sinks...)
	st.Subscribe(s.dispatcher.Publish)

	// 输入
	if cfg.Adapter.Enabled {
		client := consumer.NewAdapterClient(cfg, catalog, st, logger)
		s.runners = append(s.runners, runner{name: "adapter", start: client.Start})
	}
	if cfg.MQTT.Enabled {
		c := consumer.NewMQTTConsumer(s.mqttClient, cfg.MQTT.Topic, cfg.MQTT.QoS, catalog, st, logger)
		s.runners = append(s.runners, runner{name: "mqtt", start: c.Start})
	}
	if cfg.Ingest.Enabled {
		c := consumer.NewStreamConsumer(cfg, s.redisClient, catalog, st, logger)
		s.runners = append(s.runners, runner{name: "redis_stream", start: c.Start})
	}

	// 指标
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(s.registry, st, s.dispatcher)
	if err != nil {
		s.closeClients()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	// HTTP
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterAgentRoutes(httpapi.NewAgentHandler(engine, st, cfg.HTTP.AllowPut, m, logger))
	s.router.RegisterMetricsRoute(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.server = NewServer(cfg.HTTP.Addr, s.router, logger)

	return s, nil
}

// connect 按需创建 Redis / MQTT / Postgres 连接
func (s *AgentService) connect() error {
	cfg := s.config

	if cfg.Ingest.Enabled || cfg.Sink.RedisEnabled {
		s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), s.redisClient); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	if cfg.MQTT.Enabled || cfg.Sink.MQTTEnabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		s.mqttClient = client
	}

	if cfg.Historian.Enabled {
		db, err := database.NewPostgresDB(context.Background(), &cfg.Historian.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.history = repository.NewObservationRepository(db, s.logger)
	}
	return nil
}

// Handler HTTP 入口（probe/current/sample/assets/metrics）
func (s *AgentService) Handler() http.Handler {
	return s.router
}

// Start 启动全部组件，阻塞到 ctx 取消或任一组件失败
func (s *AgentService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running != nil {
		s.mu.Unlock()
		return fmt.Errorf("agent service already started")
	}
	done := make(chan struct{})
	s.running = done
	s.mu.Unlock()
	defer close(done)

	if s.history != nil {
		if err := s.history.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.dispatcher.Run(gctx)
	})
	for _, r := range s.runners {
		r := r
		g.Go(func() error {
			if err := r.start(gctx); err != nil {
				return fmt.Errorf("failed to run %s: %w", r.name, err)
			}
			return nil
		})
	}
	g.Go(s.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Stop(shutdownCtx)
	})

	s.logger.Info("Agent service started",
		zap.Int("devices", len(s.catalog.Devices())),
		zap.Int("buffer_size", s.config.Agent.BufferSize),
		zap.Int("inputs", len(s.runners)),
	)
	return g.Wait()
}

// Stop 等待 Start 退出后关闭外部连接
func (s *AgentService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping agent service")

	s.mu.Lock()
	done := s.running
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Agent service did not stop in time")
		}
	}

	s.closeClients()
	s.logger.Info("Agent service stopped")
	return nil
}

func (s *AgentService) closeClients() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}

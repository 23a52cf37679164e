package consumer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/adapter"
	"github.com/harrywg/mtconnect-agent/internal/config"
)

const maxBackoff = 30 * time.Second

// AdapterClient SHDR TCP 适配器客户端，断线后指数退避重连
type AdapterClient struct {
	addr        string
	device      string
	reconnect   time.Duration
	readTimeout time.Duration
	router      *lineRouter
	logger      *zap.Logger
}

// NewAdapterClient 创建适配器客户端
func NewAdapterClient(cfg *config.Config, lookup adapter.ItemLookup, ingestor Ingestor, logger *zap.Logger) *AdapterClient {
	reconnect := cfg.Adapter.ReconnectInterval
	if reconnect <= 0 {
		reconnect = time.Second
	}
	return &AdapterClient{
		addr:        cfg.Adapter.Addr,
		device:      cfg.Adapter.Device,
		reconnect:   reconnect,
		readTimeout: cfg.Adapter.ReadTimeout,
		router:      newLineRouter(lookup, ingestor, logger),
		logger:      logger,
	}
}

// Start 连接适配器并持续读取，直到 ctx 取消
func (c *AdapterClient) Start(ctx context.Context) error {
	c.logger.Info("Adapter client started",
		zap.String("addr", c.addr),
		zap.String("device", c.device),
	)

	backoff := c.reconnect
	for {
		received, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received {
			backoff = c.reconnect
		}
		c.logger.Warn("Adapter connection closed",
			zap.String("addr", c.addr),
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
	}
}

// session 单次连接；received 表示本次连接是否收到过数据
func (c *AdapterClient) session(ctx context.Context) (bool, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return false, fmt.Errorf("failed to connect to adapter: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if _, err := io.WriteString(conn, "* PING\n"); err != nil {
		return false, fmt.Errorf("failed to send ping: %w", err)
	}
	c.logger.Info("Connected to adapter", zap.String("addr", c.addr))

	reader := bufio.NewReader(conn)
	received := false
	var heartbeat time.Duration
	for {
		timeout := c.readTimeout
		if heartbeat > 0 {
			timeout = 2 * heartbeat
		}
		if timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			received = true
			if hb, ok := c.handleLine(line); ok && heartbeat == 0 {
				heartbeat = hb
				go c.ping(conn, hb, done)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return received, io.EOF
			}
			return received, fmt.Errorf("failed to read from adapter: %w", err)
		}
	}
}

// handleLine 处理一行；返回心跳间隔（若为 PONG）
func (c *AdapterClient) handleLine(line string) (time.Duration, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "*") && !c.router.inMultiline(c.device) {
		if hb, ok := adapter.ParseHeartbeat(trimmed); ok {
			return hb, true
		}
		c.logger.Debug("Adapter protocol line", zap.String("line", trimmed))
		return 0, false
	}

	if _, err := c.router.feed(c.device, line); err != nil {
		c.logger.Warn("Failed to ingest adapter line",
			zap.String("line", trimmed),
			zap.Error(err),
		)
	}
	return 0, false
}

func (c *AdapterClient) ping(conn net.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := io.WriteString(conn, "* PING\n"); err != nil {
				return
			}
		}
	}
}

package sink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Sink 观测值输出目标
type Sink interface {
	Name() string
	WriteBatch(ctx context.Context, batch []models.Observation) error
}

// Dispatcher 把存储提交的观测值异步分发给各个 Sink
// 队列满时丢弃并计数，不阻塞写入路径
type Dispatcher struct {
	queue   chan []models.Observation
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger

	dropped   uint64
	delivered uint64
	failed    uint64
}

// NewDispatcher 创建分发器
func NewDispatcher(queueSize int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:   make(chan []models.Observation, queueSize),
		sinks:   sinks,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Publish 非阻塞入队，签名与 store.Listener 一致
func (d *Dispatcher) Publish(batch []models.Observation) {
	if len(d.sinks) == 0 || len(batch) == 0 {
		return
	}
	select {
	case d.queue <- batch:
	default:
		n := atomic.AddUint64(&d.dropped, uint64(len(batch)))
		d.logger.Warn("Sink queue full, dropping observations",
			zap.Int("batch_size", len(batch)),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Run 消费队列直到 ctx 取消，取消后尽力写完已入队的批次
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Sink dispatcher started", zap.Int("sinks", len(d.sinks)))
	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("Sink dispatcher stopped")
			return nil
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch []models.Observation) {
	for _, s := range d.sinks {
		wctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.WriteBatch(wctx, batch)
		cancel()
		if err != nil {
			atomic.AddUint64(&d.failed, uint64(len(batch)))
			// 单个 Sink 失败不影响其它 Sink
			d.logger.Error("Failed to write observations",
				zap.String("sink", s.Name()),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}
		atomic.AddUint64(&d.delivered, uint64(len(batch)))
	}
}

// Dropped 因队列满被丢弃的观测值数
func (d *Dispatcher) Dropped() uint64 {
	return atomic.LoadUint64(&d.dropped)
}

// Delivered 成功写入的观测值数（按 Sink 累计）
func (d *Dispatcher) Delivered() uint64 {
	return atomic.LoadUint64(&d.delivered)
}

// Failed 写入失败的观测值数（按 Sink 累计）
func (d *Dispatcher) Failed() uint64 {
	return atomic.LoadUint64(&d.failed)
}

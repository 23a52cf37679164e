package consumer

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/adapter"
	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Ingestor 接收解码后的批次，由 *store.Store 实现
type Ingestor interface {
	Ingest(batch *models.Batch) error
}

// lineRouter 按设备维护解码器（多行资产状态按设备隔离）
type lineRouter struct {
	lookup   adapter.ItemLookup
	ingestor Ingestor
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	decoders map[string]*adapter.Decoder
}

func newLineRouter(lookup adapter.ItemLookup, ingestor Ingestor, logger *zap.Logger) *lineRouter {
	return &lineRouter{
		lookup:   lookup,
		ingestor: ingestor,
		logger:   logger,
		now:      time.Now,
		decoders: make(map[string]*adapter.Decoder),
	}
}

// feed 解码并写入一段文本（可含多行），返回成功写入的批次数
func (r *lineRouter) feed(device, text string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.decoders[device]
	if !ok {
		d = adapter.NewDecoder(r.lookup, device, r.now)
		r.decoders[device] = d
	}

	ingested := 0
	var firstErr error
	for _, line := range strings.Split(strings.TrimRight(text, "\r\n"), "\n") {
		batch := d.Decode(line)
		if batch == nil {
			continue
		}
		if err := r.ingestor.Ingest(batch); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ingested++
	}
	return ingested, firstErr
}

func (r *lineRouter) inMultiline(device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decoders[device]
	return ok && d.InMultiline()
}

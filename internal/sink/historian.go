package sink

import (
	"context"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Archiver 观测值归档，由 repository.ObservationRepository 实现
type Archiver interface {
	InsertBatch(ctx context.Context, instanceID uint64, batch []models.Observation) error
}

// HistorianSink 写入 Postgres 历史表
type HistorianSink struct {
	repo       Archiver
	instanceID uint64
}

// NewHistorianSink 创建历史表输出；instanceID 与存储实例一致
func NewHistorianSink(repo Archiver, instanceID uint64) *HistorianSink {
	return &HistorianSink{repo: repo, instanceID: instanceID}
}

func (s *HistorianSink) Name() string { return "historian" }

func (s *HistorianSink) WriteBatch(ctx context.Context, batch []models.Observation) error {
	return s.repo.InsertBatch(ctx, s.instanceID, batch)
}

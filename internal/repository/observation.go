package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

const createObservationsTable = `
	CREATE TABLE IF NOT EXISTS mtconnect_observations (
		instance_id   BIGINT NOT NULL,
		sequence      BIGINT NOT NULL,
		device_uuid   TEXT NOT NULL,
		data_item_id  TEXT NOT NULL,
		category      TEXT NOT NULL,
		ts            TEXT NOT NULL,
		value         TEXT NOT NULL,
		field_values  TEXT[] NOT NULL,
		attributes    JSONB,
		PRIMARY KEY (instance_id, sequence)
	)
`

const insertObservation = `
	INSERT INTO mtconnect_observations (
		instance_id, sequence, device_uuid, data_item_id, category, ts, value, field_values, attributes
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (instance_id, sequence) DO NOTHING
`

// ObservationRepository 观测值历史表（只写导出，不参与查询）
type ObservationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewObservationRepository 创建观测值仓库
func NewObservationRepository(db *sql.DB, logger *zap.Logger) *ObservationRepository {
	return &ObservationRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 创建历史表（幂等）
func (r *ObservationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createObservationsTable); err != nil {
		return fmt.Errorf("failed to create observations table: %w", err)
	}
	return nil
}

// InsertBatch 在一个事务内写入一批观测值
// 同一 instance 内序列号重复时忽略（重启后 instance_id 变化）
func (r *ObservationRepository) InsertBatch(ctx context.Context, instanceID uint64, batch []models.Observation) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertObservation)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		obs := &batch[i]
		var attrs interface{}
		if len(obs.Attributes) > 0 {
			data, err := json.Marshal(obs.Attributes)
			if err != nil {
				return fmt.Errorf("failed to marshal attributes: %w", err)
			}
			attrs = string(data)
		}
		if _, err := stmt.ExecContext(ctx,
			int64(instanceID),
			int64(obs.Sequence),
			obs.DeviceKey,
			obs.DataItemID,
			string(obs.Category),
			obs.Timestamp,
			obs.Value(),
			pq.Array(obs.Values),
			attrs,
		); err != nil {
			return fmt.Errorf("failed to insert observation %d: %w", obs.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}

	r.logger.Debug("Observations archived",
		zap.Uint64("instance_id", instanceID),
		zap.Int("count", len(batch)),
	)
	return nil
}

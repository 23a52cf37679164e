package store

import "github.com/harrywg/mtconnect-agent/internal/models"

// InsertAsset 新增资产，id 已存在返回 Conflict
func (s *Store) InsertAsset(a models.Asset) error {
	return s.commit(func() error {
		if err := s.prepareAssetLocked(&a); err != nil {
			return err
		}
		return s.assets.insert(a)
	})
}

// ReplaceAsset 替换已有资产内容，不存在返回 NotFound
func (s *Store) ReplaceAsset(a models.Asset) error {
	return s.commit(func() error {
		if err := s.prepareAssetLocked(&a); err != nil {
			return err
		}
		return s.assets.replace(a)
	})
}

// RemoveAsset 标记资产已删除；content 为 nil 时保留原内容
func (s *Store) RemoveAsset(id, timestamp string, content *string) error {
	return s.commit(func() error {
		if timestamp == "" {
			timestamp = s.timestamp()
		}
		return s.assets.markRemoved(id, timestamp, content)
	})
}

// GetAsset 按 id 查询资产（包括已删除）
func (s *Store) GetAsset(id string) (models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets.get(id)
	if !ok {
		return models.Asset{}, models.AssetNotFound(id)
	}
	return a, nil
}

// ListAssets 最近插入的在前
func (s *Store) ListAssets(f models.AssetFilter) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f.DeviceKey != "" {
		dev, err := s.resolveDevice(f.DeviceKey)
		if err != nil {
			return nil, err
		}
		f.DeviceKey = dev.UUID
	}
	return s.assets.list(f), nil
}

// SetAssetCapacity 调整资产缓冲区容量，缩容在下一次插入时生效
func (s *Store) SetAssetCapacity(m int) {
	s.mu.Lock()
	s.assets.setCapacity(m)
	s.mu.Unlock()
}

func (s *Store) prepareAssetLocked(a *models.Asset) error {
	if a.Timestamp == "" {
		a.Timestamp = s.timestamp()
	}
	dev, err := s.resolveDevice(a.DeviceKey)
	if err != nil {
		if a.DeviceKey == "" {
			return nil
		}
		return err
	}
	a.DeviceKey = dev.UUID
	return nil
}

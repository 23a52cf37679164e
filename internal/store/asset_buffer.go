package store

import (
	"strings"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

type assetEvent int

const (
	assetChanged assetEvent = iota
	assetRemoved
)

// assetBuffer 按首次插入顺序保存资产，容量满时淘汰最早插入的资产
type assetBuffer struct {
	capacity int
	order    []string
	assets   map[string]*models.Asset
	emit     func(assetEvent, *models.Asset)
	evicted  uint64
}

func newAssetBuffer(capacity int, emit func(assetEvent, *models.Asset)) *assetBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if emit == nil {
		emit = func(assetEvent, *models.Asset) {}
	}
	return &assetBuffer{
		capacity: capacity,
		assets:   make(map[string]*models.Asset),
		emit:     emit,
	}
}

func (b *assetBuffer) insert(a models.Asset) error {
	if a.AssetID == "" {
		return models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest, "Asset id is required")
	}
	if a.AssetType == "" {
		return models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest, "Asset type is required for asset %s", a.AssetID)
	}
	if _, ok := b.assets[a.AssetID]; ok {
		return models.NewError(models.KindConflict, models.CodeAssetExists, "Asset %s already exists", a.AssetID)
	}

	// 缩容延迟到这里生效
	for len(b.order) >= b.capacity {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.assets, oldest)
		b.evicted++
	}

	stored := a
	b.assets[a.AssetID] = &stored
	b.order = append(b.order, a.AssetID)
	b.emit(assetChanged, &stored)
	return nil
}

// replace 原地替换内容，不改变顺序和数量
func (b *assetBuffer) replace(a models.Asset) error {
	cur, ok := b.assets[a.AssetID]
	if !ok {
		return models.AssetNotFound(a.AssetID)
	}
	if a.AssetType != "" {
		cur.AssetType = a.AssetType
	}
	if a.DeviceKey != "" {
		cur.DeviceKey = a.DeviceKey
	}
	cur.Timestamp = a.Timestamp
	cur.Content = a.Content
	cur.Removed = false
	b.emit(assetChanged, cur)
	return nil
}

// markRemoved 标记删除；content 为 nil 时保留原内容
func (b *assetBuffer) markRemoved(id, timestamp string, content *string) error {
	cur, ok := b.assets[id]
	if !ok {
		return models.AssetNotFound(id)
	}
	cur.Removed = true
	cur.Timestamp = timestamp
	if content != nil {
		cur.Content = *content
	}
	b.emit(assetRemoved, cur)
	return nil
}

func (b *assetBuffer) get(id string) (models.Asset, bool) {
	a, ok := b.assets[id]
	if !ok {
		return models.Asset{}, false
	}
	return *a, true
}

// list 最近插入的在前；Limit 只限制返回条数
func (b *assetBuffer) list(f models.AssetFilter) []models.Asset {
	out := make([]models.Asset, 0)
	for i := len(b.order) - 1; i >= 0; i-- {
		a := b.assets[b.order[i]]
		if a.Removed && !f.IncludeRemoved {
			continue
		}
		if f.Type != "" && !strings.EqualFold(a.AssetType, f.Type) {
			continue
		}
		if f.DeviceKey != "" && a.DeviceKey != f.DeviceKey {
			continue
		}
		out = append(out, *a)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

func (b *assetBuffer) count() int {
	return len(b.order)
}

func (b *assetBuffer) setCapacity(m int) {
	if m < 1 {
		m = 1
	}
	b.capacity = m
}

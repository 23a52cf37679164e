package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Schema 存储层依赖的设备目录
type Schema interface {
	Devices() []*models.Device
	Device(key string) (*models.Device, bool)
	DataItem(deviceKey, key string) (*models.DataItem, bool)
}

// Listener 按序列号顺序接收已提交的观测值，在写锁内调用，不能阻塞也不能回调 Store
type Listener func([]models.Observation)

// Options 存储配置
type Options struct {
	BufferSize      int
	AssetBufferSize int
	Now             func() time.Time
}

// Stats 存储统计
type Stats struct {
	InstanceID      uint64
	BufferSize      int
	FirstSequence   uint64
	LastSequence    uint64
	NextSequence    uint64
	AssetBufferSize int
	AssetCount      int
	Accepted        uint64
	Duplicates      uint64
	Filtered        uint64
	Rejected        uint64
	Unknown         uint64
	AssetsEvicted   uint64
}

// Store 观测值缓冲区、当前值/条件状态和资产缓冲区，共用一把读写锁
type Store struct {
	mu         sync.RWMutex
	schema     Schema
	buffer     *circularBuffer
	live       *tracker
	checkpoint *tracker
	policy     *policy
	assets     *assetBuffer
	instanceID uint64
	now        func() time.Time
	logger     *zap.Logger
	pending    []models.Observation
	stats      Stats

	listenerMu sync.RWMutex
	listeners  []Listener
}

// NewStore 创建存储并为目录中的全部设备写入初始值
func NewStore(schema Schema, opts Options, logger *zap.Logger) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		schema:     schema,
		buffer:     newCircularBuffer(opts.BufferSize),
		live:       newTracker(),
		checkpoint: newTracker(),
		policy:     newPolicy(now),
		instanceID: uint64(now().Unix()),
		now:        now,
		logger:     logger,
	}
	s.assets = newAssetBuffer(opts.AssetBufferSize, s.recordAssetEvent)

	for _, dev := range schema.Devices() {
		s.RegisterDevice(dev)
	}
	return s
}

// Subscribe 注册监听器
func (s *Store) Subscribe(l Listener) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenerMu.Unlock()
}

// RegisterDevice 为设备的每个数据项写入 UNAVAILABLE（或约束常量）初始值
func (s *Store) RegisterDevice(dev *models.Device) {
	s.mu.Lock()
	ts := s.timestamp()
	for _, item := range dev.AllDataItems() {
		if s.hasState(item) {
			continue
		}
		s.appendLocked(&models.Observation{
			Timestamp:  ts,
			DeviceKey:  item.DeviceKey,
			DataItemID: item.ID,
			Category:   item.Category,
			Values:     initialValues(item),
		})
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info("Device registered",
		zap.String("device", dev.Name),
		zap.String("uuid", dev.UUID),
	)
}

// Ingest 处理一行输入解码后的批次
func (s *Store) Ingest(batch *models.Batch) error {
	return s.commit(func() error {
		dev, err := s.resolveDevice(batch.DeviceKey)
		if err != nil {
			return err
		}
		ts := batch.Timestamp
		if ts == "" {
			ts = s.timestamp()
		}
		for _, u := range batch.Updates {
			s.ingestLocked(dev, ts, u)
		}
		return nil
	})
}

func (s *Store) ingestLocked(dev *models.Device, ts string, u models.FieldUpdate) {
	switch u.Key {
	case models.AssetDirective:
		v := pad(u.Values, 3)
		s.upsertAssetLocked(models.Asset{
			AssetID:   v[0],
			AssetType: v[1],
			DeviceKey: dev.UUID,
			Timestamp: ts,
			Content:   v[2],
		})
	case models.RemoveAssetDirective:
		v := pad(u.Values, 1)
		if err := s.assets.markRemoved(v[0], ts, nil); err != nil {
			s.logger.Warn("Failed to remove asset", zap.String("asset_id", v[0]), zap.Error(err))
		}
	default:
		item, ok := s.schema.DataItem(dev.UUID, u.Key)
		if !ok {
			s.stats.Unknown++
			s.logger.Debug("Unknown data item",
				zap.String("device", dev.Name),
				zap.String("key", u.Key),
			)
			return
		}
		s.recordLocked(item, ts, u.Values, nil)
	}
}

// upsertAssetLocked 适配器资产指令：不存在则插入，存在则替换或标记删除
func (s *Store) upsertAssetLocked(a models.Asset) {
	var err error
	removed := models.ContentMarkedRemoved(a.Content)
	if _, exists := s.assets.get(a.AssetID); exists {
		if removed {
			err = s.assets.markRemoved(a.AssetID, a.Timestamp, &a.Content)
		} else {
			err = s.assets.replace(a)
		}
	} else {
		err = s.assets.insert(a)
		if err == nil && removed {
			err = s.assets.markRemoved(a.AssetID, a.Timestamp, nil)
		}
	}
	if err != nil {
		s.logger.Warn("Failed to apply asset directive", zap.String("asset_id", a.AssetID), zap.Error(err))
	}
}

// recordLocked 依次执行约束、过滤、重复检测，通过后分配序列号
func (s *Store) recordLocked(item *models.DataItem, ts string, raw []string, attrs map[string]string) bool {
	values := append([]string(nil), raw...)
	if len(values) == 0 {
		values = []string{""}
	}
	if item.IsCondition() {
		values = pad(values, models.ConditionFields)
		sev, ok := models.ParseSeverity(values[0])
		if !ok {
			s.stats.Rejected++
			s.logger.Warn("Invalid condition severity",
				zap.String("data_item", item.ID),
				zap.String("severity", values[0]),
			)
			return false
		}
		values[0] = string(sev)
	}

	values, ok := s.policy.constrain(item, values)
	if !ok {
		s.stats.Rejected++
		s.logger.Debug("Value rejected by constraint", zap.String("data_item", item.ID), zap.Strings("values", values))
		return false
	}
	cur, _ := s.live.latest(item.DeviceKey, item.ID)
	if !s.policy.admit(item, values, cur) {
		s.stats.Filtered++
		return false
	}
	if s.live.isDuplicate(item, values) {
		s.stats.Duplicates++
		return false
	}

	s.appendLocked(&models.Observation{
		Timestamp:  ts,
		DeviceKey:  item.DeviceKey,
		DataItemID: item.ID,
		Category:   item.Category,
		Values:     values,
		Attributes: attrs,
	})
	s.policy.accepted(item)
	return true
}

func (s *Store) appendLocked(obs *models.Observation) {
	_, evicted := s.buffer.append(obs)
	if evicted != nil {
		s.checkpoint.apply(evicted)
	}
	s.live.apply(obs)
	s.pending = append(s.pending, *obs)
	s.stats.Accepted++
}

// recordAssetEvent 资产缓冲区回调，在写锁内执行
func (s *Store) recordAssetEvent(kind assetEvent, a *models.Asset) {
	dev, err := s.resolveDevice(a.DeviceKey)
	if err != nil {
		return
	}
	id := dev.AssetChangedID
	if kind == assetRemoved {
		id = dev.AssetRemovedID
	}
	item, ok := s.schema.DataItem(dev.UUID, id)
	if !ok {
		return
	}
	ts := a.Timestamp
	if ts == "" {
		ts = s.timestamp()
	}
	s.recordLocked(item, ts, []string{a.AssetID}, map[string]string{"assetType": a.AssetType})
}

func (s *Store) hasState(item *models.DataItem) bool {
	if item.IsCondition() {
		_, ok := s.live.condition(item.DeviceKey, item.ID)
		return ok
	}
	_, ok := s.live.latest(item.DeviceKey, item.ID)
	return ok
}

// resolveDevice 空 key 表示默认设备（目录中第一个）
func (s *Store) resolveDevice(key string) (*models.Device, error) {
	if key == "" {
		devs := s.schema.Devices()
		if len(devs) == 0 {
			return nil, models.DeviceNotFound(key)
		}
		return devs[0], nil
	}
	dev, ok := s.schema.Device(key)
	if !ok {
		return nil, models.DeviceNotFound(key)
	}
	return dev, nil
}

// commit 在写锁内执行 fn 并通知监听器
func (s *Store) commit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn()
	s.notifyLocked()
	return err
}

// notifyLocked 在释放写锁前交付 pending
func (s *Store) notifyLocked() {
	committed := s.pending
	s.pending = nil
	if len(committed) == 0 {
		return
	}
	s.listenerMu.RLock()
	for _, l := range s.listeners {
		l(committed)
	}
	s.listenerMu.RUnlock()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

func initialValues(item *models.DataItem) []string {
	if item.IsCondition() {
		return []string{string(models.SeverityUnavailable), "", "", "", ""}
	}
	if item.Constraint != nil && item.Constraint.Constant != nil {
		return []string{*item.Constraint.Constant}
	}
	return []string{models.Unavailable}
}

func pad(values []string, n int) []string {
	if len(values) >= n {
		return values
	}
	out := make([]string, n)
	copy(out, values)
	return out
}

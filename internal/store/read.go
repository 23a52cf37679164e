package store

import "github.com/harrywg/mtconnect-agent/internal/models"

// Snapshot 某一序列号时刻的当前值与条件状态，Stats 与状态在同一把读锁下取得
type Snapshot struct {
	Sequence uint64
	Stats    Stats
	state    *tracker
}

// Latest 非条件数据项的最新观测值
func (s *Snapshot) Latest(deviceKey, itemID string) (models.Observation, bool) {
	o, ok := s.state.latest(deviceKey, itemID)
	if !ok {
		return models.Observation{}, false
	}
	return *o, true
}

// Condition 条件数据项的当前条件列表
func (s *Snapshot) Condition(deviceKey, itemID string) ([]models.ConditionEntry, bool) {
	return s.state.condition(deviceKey, itemID)
}

// Sequences 返回 first / last / next 序列号
func (s *Store) Sequences() (first, last, next uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffer.first, s.buffer.lastSequence(), s.buffer.next
}

// Range 返回从 from 开始最多 count 条观测值
func (s *Store) Range(from uint64, count int) ([]models.Observation, error) {
	obs, _, err := s.Sample(&from, count)
	return obs, err
}

// Sample 在同一把读锁下解析 from（nil 表示 firstSequence）、取区间并返回统计
func (s *Store) Sample(from *uint64, count int) ([]models.Observation, Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.buffer.first
	if from != nil {
		start = *from
	}
	obs, err := s.buffer.rangeFrom(start, count)
	if err != nil {
		return nil, Stats{}, err
	}
	out := make([]models.Observation, len(obs))
	for i, o := range obs {
		out[i] = *o
	}
	return out, s.statsLocked(), nil
}

// Current at 为 nil 时返回实时状态，否则由 checkpoint 重放到 at
func (s *Store) Current(at *uint64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if at == nil {
		return &Snapshot{Sequence: s.buffer.lastSequence(), Stats: s.statsLocked(), state: s.live.clone()}, nil
	}
	if *at < s.buffer.first || *at >= s.buffer.next {
		return nil, models.NewError(models.KindOutOfRange, models.CodeOutOfRange,
			"'at' must be in the range %d to %d.", s.buffer.first, s.buffer.lastSequence())
	}

	state := s.checkpoint.clone()
	for seq := s.buffer.first; seq <= *at; seq++ {
		state.apply(s.buffer.get(seq))
	}
	return &Snapshot{Sequence: *at, Stats: s.statsLocked(), state: state}, nil
}

// Stats 返回统计信息
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() Stats {
	st := s.stats
	st.InstanceID = s.instanceID
	st.BufferSize = int(s.buffer.size)
	st.FirstSequence = s.buffer.first
	st.LastSequence = s.buffer.lastSequence()
	st.NextSequence = s.buffer.next
	st.AssetBufferSize = s.assets.capacity
	st.AssetCount = s.assets.count()
	st.AssetsEvicted = s.assets.evicted
	return st
}

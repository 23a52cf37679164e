package store

import "github.com/harrywg/mtconnect-agent/internal/models"

type itemKey struct {
	device string
	item   string
}

// conditionState 单个 CONDITION 数据项的状态
type conditionState struct {
	active      *conditionList
	unavailable bool
	// 最近一次使状态变为 NORMAL/UNAVAILABLE 的转换
	last models.ConditionEntry
}

// tracker 当前值表 + 条件状态；实时状态与 checkpoint 共用
type tracker struct {
	values     map[itemKey]*models.Observation
	conditions map[itemKey]*conditionState
}

func newTracker() *tracker {
	return &tracker{
		values:     make(map[itemKey]*models.Observation),
		conditions: make(map[itemKey]*conditionState),
	}
}

func (t *tracker) clone() *tracker {
	c := newTracker()
	for k, v := range t.values {
		c.values[k] = v
	}
	for k, s := range t.conditions {
		c.conditions[k] = &conditionState{
			active:      s.active.clone(),
			unavailable: s.unavailable,
			last:        s.last,
		}
	}
	return c
}

// isDuplicate 判断更新是否与当前状态重复（重复则不分配序列号）
func (t *tracker) isDuplicate(item *models.DataItem, values []string) bool {
	key := itemKey{item.DeviceKey, item.ID}
	if item.IsCondition() {
		return t.conditionDuplicate(key, values)
	}
	if item.IsDiscrete() {
		return false
	}
	cur, ok := t.values[key]
	return ok && models.SameValues(cur.Values, values)
}

func (t *tracker) conditionDuplicate(key itemKey, values []string) bool {
	s, ok := t.conditions[key]
	if !ok {
		return false
	}
	e := models.ConditionFromObservation(&models.Observation{Category: models.CategoryCondition, Values: values})
	switch e.Severity {
	case models.SeverityUnavailable:
		return s.unavailable
	case models.SeverityNormal:
		if s.unavailable {
			return false
		}
		if e.NativeCode == "" {
			return s.active.len() == 0
		}
		_, active := s.active.get(e.NativeCode)
		return !active
	default:
		if s.unavailable {
			return false
		}
		cur, active := s.active.get(e.NativeCode)
		return active && cur.SameFields(e)
	}
}

// apply 将已接受的观测值折叠进状态
func (t *tracker) apply(obs *models.Observation) {
	key := itemKey{obs.DeviceKey, obs.DataItemID}
	if obs.Category != models.CategoryCondition {
		t.values[key] = obs
		return
	}

	s, ok := t.conditions[key]
	if !ok {
		s = &conditionState{active: newConditionList()}
		t.conditions[key] = s
	}
	e := models.ConditionFromObservation(obs)
	switch e.Severity {
	case models.SeverityUnavailable:
		s.active.clear()
		s.unavailable = true
		s.last = models.ConditionEntry{Severity: models.SeverityUnavailable, Sequence: e.Sequence, Timestamp: e.Timestamp}
	case models.SeverityNormal:
		s.unavailable = false
		if e.NativeCode == "" {
			s.active.clear()
			s.last = e
			return
		}
		s.active.remove(e.NativeCode)
		if s.active.len() == 0 {
			s.last = models.ConditionEntry{Severity: models.SeverityNormal, Sequence: e.Sequence, Timestamp: e.Timestamp}
		}
	default:
		s.unavailable = false
		s.active.upsert(e)
	}
}

// latest 非条件数据项的最新观测值
func (t *tracker) latest(device, item string) (*models.Observation, bool) {
	o, ok := t.values[itemKey{device, item}]
	return o, ok
}

// condition 返回当前条件列表：[UNAVAILABLE]、[NORMAL] 或活动项
func (t *tracker) condition(device, item string) ([]models.ConditionEntry, bool) {
	s, ok := t.conditions[itemKey{device, item}]
	if !ok {
		return nil, false
	}
	if s.unavailable || s.active.len() == 0 {
		return []models.ConditionEntry{s.last}, true
	}
	return s.active.list(), true
}

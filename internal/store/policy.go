package store

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

// policy 约束与过滤规则，在重复检测之前执行
type policy struct {
	now          func() time.Time
	lastAccepted map[itemKey]time.Time
}

func newPolicy(now func() time.Time) *policy {
	if now == nil {
		now = time.Now
	}
	return &policy{now: now, lastAccepted: make(map[itemKey]time.Time)}
}

// constrain 固定值约束替换为常量；允许值列表外的值返回 false
func (p *policy) constrain(item *models.DataItem, values []string) ([]string, bool) {
	c := item.Constraint
	if c == nil || item.IsCondition() {
		return values, true
	}
	if c.Constant != nil {
		return []string{*c.Constant}, true
	}
	if len(c.Allowed) == 0 {
		return values, true
	}
	v := values[len(values)-1]
	if strings.EqualFold(v, models.Unavailable) {
		return values, true
	}
	for _, allowed := range c.Allowed {
		if v == allowed {
			return values, true
		}
	}
	return values, false
}

// admit 按 MINIMUM_DELTA / PERIOD 过滤；current 为当前已接受的观测值
func (p *policy) admit(item *models.DataItem, values []string, current *models.Observation) bool {
	f := item.Filter
	if f == nil || item.IsCondition() || len(values) == 0 {
		return true
	}
	v := values[len(values)-1]
	if strings.EqualFold(v, models.Unavailable) {
		return true
	}

	switch f.Kind {
	case models.FilterMinimumDelta:
		if current == nil || current.IsUnavailable() {
			return true
		}
		next, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return true
		}
		last, err := strconv.ParseFloat(strings.TrimSpace(current.Value()), 64)
		if err != nil {
			return true
		}
		return math.Abs(next-last) >= f.Value
	case models.FilterPeriod:
		last, ok := p.lastAccepted[itemKey{item.DeviceKey, item.ID}]
		if !ok {
			return true
		}
		return p.now().Sub(last).Seconds() >= f.Value
	}
	return true
}

// accepted 记录接受时间（PERIOD 过滤使用）
func (p *policy) accepted(item *models.DataItem) {
	if item.Filter != nil && item.Filter.Kind == models.FilterPeriod {
		p.lastAccepted[itemKey{item.DeviceKey, item.ID}] = p.now()
	}
}

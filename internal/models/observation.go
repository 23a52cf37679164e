package models

import "strings"

// Category 数据项类别
type Category string

const (
	CategorySample    Category = "SAMPLE"
	CategoryEvent     Category = "EVENT"
	CategoryCondition Category = "CONDITION"
)

// Unavailable 数据项无有效值时的取值
const Unavailable = "UNAVAILABLE"

// Observation 一次被接受的数据项更新，创建后不可修改
type Observation struct {
	Sequence   uint64            `json:"sequence"`
	Timestamp  string            `json:"timestamp"`
	DeviceKey  string            `json:"deviceUuid"`
	DataItemID string            `json:"dataItemId"`
	Category   Category          `json:"category"`
	Values     []string          `json:"values"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Value 返回主值（多值数据项取最后一个字段）
func (o *Observation) Value() string {
	if len(o.Values) == 0 {
		return ""
	}
	if o.Category == CategoryCondition {
		return o.Values[0]
	}
	return o.Values[len(o.Values)-1]
}

// IsUnavailable 是否为 UNAVAILABLE
func (o *Observation) IsUnavailable() bool {
	return strings.EqualFold(o.Value(), Unavailable)
}

// SameValues 比较两组值是否完全相同
func SameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Severity 条件严重级别
type Severity string

const (
	SeverityNormal      Severity = "NORMAL"
	SeverityWarning     Severity = "WARNING"
	SeverityFault       Severity = "FAULT"
	SeverityUnavailable Severity = "UNAVAILABLE"
)

// ParseSeverity 解析严重级别（大小写不敏感），未知返回 false
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityNormal:
		return SeverityNormal, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityFault:
		return SeverityFault, true
	case SeverityUnavailable:
		return SeverityUnavailable, true
	}
	return "", false
}

// ConditionFields CONDITION 数据项的字段数：severity|nativeCode|nativeSeverity|qualifier|message
const ConditionFields = 5

// ConditionEntry 条件状态中的一项
type ConditionEntry struct {
	Severity       Severity `json:"severity"`
	NativeCode     string   `json:"nativeCode,omitempty"`
	NativeSeverity string   `json:"nativeSeverity,omitempty"`
	Qualifier      string   `json:"qualifier,omitempty"`
	Message        string   `json:"message,omitempty"`
	Sequence       uint64   `json:"sequence"`
	Timestamp      string   `json:"timestamp"`
}

// ConditionFromObservation 从 CONDITION 观测值还原条件项
func ConditionFromObservation(o *Observation) ConditionEntry {
	v := make([]string, ConditionFields)
	copy(v, o.Values)
	sev, ok := ParseSeverity(v[0])
	if !ok {
		sev = SeverityUnavailable
	}
	return ConditionEntry{
		Severity:       sev,
		NativeCode:     v[1],
		NativeSeverity: v[2],
		Qualifier:      v[3],
		Message:        v[4],
		Sequence:       o.Sequence,
		Timestamp:      o.Timestamp,
	}
}

// Values 转回观测值字段顺序
func (c ConditionEntry) Values() []string {
	return []string{string(c.Severity), c.NativeCode, c.NativeSeverity, c.Qualifier, c.Message}
}

// SameFields 除序列号和时间戳外是否相同
func (c ConditionEntry) SameFields(o ConditionEntry) bool {
	return c.Severity == o.Severity &&
		c.NativeCode == o.NativeCode &&
		c.NativeSeverity == o.NativeSeverity &&
		c.Qualifier == o.Qualifier &&
		c.Message == o.Message
}

package models

// Representation 数据项表示方式
type Representation string

const (
	RepresentationValue    Representation = "VALUE"
	RepresentationDiscrete Representation = "DISCRETE"
)

// FilterKind 过滤器类型
type FilterKind string

const (
	FilterMinimumDelta FilterKind = "MINIMUM_DELTA"
	FilterPeriod       FilterKind = "PERIOD"
)

// Filter 数据项过滤器
type Filter struct {
	Kind  FilterKind `json:"type"`
	Value float64    `json:"value"`
}

// Constraint 数据项约束：Constant 非空时为固定值，否则为允许值列表
type Constraint struct {
	Constant *string  `json:"value,omitempty"`
	Allowed  []string `json:"values,omitempty"`
}

// 资产事件数据项类型
const (
	TypeAssetChanged = "ASSET_CHANGED"
	TypeAssetRemoved = "ASSET_REMOVED"
	TypeMessage      = "MESSAGE"
)

// DataItem 数据项定义
type DataItem struct {
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	Type           string         `json:"type"`
	SubType        string         `json:"subType,omitempty"`
	Category       Category       `json:"category"`
	Representation Representation `json:"representation,omitempty"`
	Units          string         `json:"units,omitempty"`
	Filter         *Filter        `json:"filter,omitempty"`
	Constraint     *Constraint    `json:"constraint,omitempty"`
	DeviceKey      string         `json:"-"`
	ComponentID    string         `json:"-"`
}

// IsCondition 是否为 CONDITION 数据项
func (d *DataItem) IsCondition() bool {
	return d.Category == CategoryCondition
}

// IsDiscrete DISCRETE 数据项每次更新都记录，不做重复抑制
func (d *DataItem) IsDiscrete() bool {
	return d.Representation == RepresentationDiscrete
}

// Arity 一次更新在 SHDR 行中占用的值字段数
func (d *DataItem) Arity() int {
	switch {
	case d.IsCondition():
		return ConditionFields
	case d.Type == TypeMessage:
		return 2
	default:
		return 1
	}
}

// Component 设备组件
type Component struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Name       string       `json:"name,omitempty"`
	DataItems  []*DataItem  `json:"dataItems,omitempty"`
	Components []*Component `json:"components,omitempty"`
}

// Device 设备定义，设备本身也可直接挂数据项
type Device struct {
	UUID           string       `json:"uuid"`
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	DataItems      []*DataItem  `json:"dataItems,omitempty"`
	Components     []*Component `json:"components,omitempty"`
	AssetChangedID string       `json:"-"`
	AssetRemovedID string       `json:"-"`
}

// AllDataItems 按文档顺序返回设备下全部数据项
func (d *Device) AllDataItems() []*DataItem {
	items := append([]*DataItem{}, d.DataItems...)
	var walk func(cs []*Component)
	walk = func(cs []*Component) {
		for _, c := range cs {
			items = append(items, c.DataItems...)
			walk(c.Components)
		}
	}
	walk(d.Components)
	return items
}

package query

import (
	"github.com/harrywg/mtconnect-agent/internal/models"
	"github.com/harrywg/mtconnect-agent/internal/store"
)

// Schema 查询依赖的设备目录
type Schema interface {
	Devices() []*models.Device
	Device(key string) (*models.Device, bool)
	ResolvePath(device *models.Device, path string) ([]*models.DataItem, error)
}

// Source 查询依赖的存储，由 *store.Store 实现
type Source interface {
	Current(at *uint64) (*store.Snapshot, error)
	Sample(from *uint64, count int) ([]models.Observation, store.Stats, error)
	Stats() store.Stats
	GetAsset(id string) (models.Asset, error)
	ListAssets(f models.AssetFilter) ([]models.Asset, error)
}

// Options 查询参数限制
type Options struct {
	DefaultSampleCount int
	MaxSampleCount     int
}

// Engine 查询引擎
type Engine struct {
	schema Schema
	source Source
	opts   Options
}

// NewEngine 创建查询引擎
func NewEngine(schema Schema, source Source, opts Options) *Engine {
	if opts.DefaultSampleCount <= 0 {
		opts.DefaultSampleCount = 100
	}
	if opts.MaxSampleCount < opts.DefaultSampleCount {
		opts.MaxSampleCount = opts.DefaultSampleCount
	}
	return &Engine{schema: schema, source: source, opts: opts}
}

// Header 响应头
type Header struct {
	InstanceID      uint64 `json:"instanceId"`
	BufferSize      int    `json:"bufferSize"`
	FirstSequence   uint64 `json:"firstSequence"`
	LastSequence    uint64 `json:"lastSequence"`
	NextSequence    uint64 `json:"nextSequence"`
	AssetBufferSize int    `json:"assetBufferSize"`
	AssetCount      int    `json:"assetCount"`
}

// Item 带数据项元信息的观测值
type Item struct {
	models.Observation
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	SubType     string `json:"subType,omitempty"`
	ComponentID string `json:"componentId"`
}

// DeviceStream 单个设备的观测值
type DeviceStream struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// StreamsResult current / sample 的结果
type StreamsResult struct {
	Header  Header         `json:"header"`
	Devices []DeviceStream `json:"devices"`
}

// DevicesResult probe 的结果
type DevicesResult struct {
	Header  Header           `json:"header"`
	Devices []*models.Device `json:"devices"`
}

// AssetsResult assets 的结果
type AssetsResult struct {
	Header Header         `json:"header"`
	Assets []models.Asset `json:"assets"`
}

// CurrentRequest current 请求
type CurrentRequest struct {
	Device string
	Path   string
	At     *uint64
}

// SampleRequest sample 请求
type SampleRequest struct {
	Device string
	Path   string
	From   *uint64
	Count  *int
}

// AssetRequest assets 请求
type AssetRequest struct {
	Device         string
	Type           string
	IncludeRemoved bool
	Count          *int
}

// Header 当前缓冲区和资产计数
func (e *Engine) Header() Header {
	return headerFromStats(e.source.Stats())
}

func headerFromStats(st store.Stats) Header {
	return Header{
		InstanceID:      st.InstanceID,
		BufferSize:      st.BufferSize,
		FirstSequence:   st.FirstSequence,
		LastSequence:    st.LastSequence,
		NextSequence:    st.NextSequence,
		AssetBufferSize: st.AssetBufferSize,
		AssetCount:      st.AssetCount,
	}
}

// devices 解析设备参数，空表示全部
func (e *Engine) devices(key string) ([]*models.Device, error) {
	if key == "" {
		return e.schema.Devices(), nil
	}
	dev, ok := e.schema.Device(key)
	if !ok {
		return nil, models.DeviceNotFound(key)
	}
	return []*models.Device{dev}, nil
}

// selection 按设备和路径确定数据项集合
func (e *Engine) selection(deviceKey, path string) ([]*models.Device, map[string][]*models.DataItem, error) {
	devs, err := e.devices(deviceKey)
	if err != nil {
		return nil, nil, err
	}
	var scope *models.Device
	if deviceKey != "" {
		scope = devs[0]
	}
	items, err := e.schema.ResolvePath(scope, path)
	if err != nil {
		return nil, nil, err
	}
	byDevice := make(map[string][]*models.DataItem)
	for _, di := range items {
		byDevice[di.DeviceKey] = append(byDevice[di.DeviceKey], di)
	}
	return devs, byDevice, nil
}

func itemFor(di *models.DataItem, o models.Observation) Item {
	return Item{
		Observation: o,
		Name:        di.Name,
		Type:        di.Type,
		SubType:     di.SubType,
		ComponentID: di.ComponentID,
	}
}

package query

import (
	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Current 当前值；At 非空时返回该序列号时刻的状态
func (e *Engine) Current(req CurrentRequest) (*StreamsResult, error) {
	devs, byDevice, err := e.selection(req.Device, req.Path)
	if err != nil {
		return nil, err
	}

	snap, err := e.source.Current(req.At)
	if err != nil {
		return nil, err
	}

	result := &StreamsResult{Header: headerFromStats(snap.Stats)}
	for _, dev := range devs {
		stream := DeviceStream{UUID: dev.UUID, Name: dev.Name, Items: []Item{}}
		for _, di := range byDevice[dev.UUID] {
			stream.Items = append(stream.Items, currentItems(snap, di)...)
		}
		result.Devices = append(result.Devices, stream)
	}
	return result, nil
}

type snapshot interface {
	Latest(deviceKey, itemID string) (models.Observation, bool)
	Condition(deviceKey, itemID string) ([]models.ConditionEntry, bool)
}

func currentItems(snap snapshot, di *models.DataItem) []Item {
	if di.IsCondition() {
		entries, ok := snap.Condition(di.DeviceKey, di.ID)
		if !ok {
			entries = []models.ConditionEntry{{Severity: models.SeverityUnavailable}}
		}
		items := make([]Item, 0, len(entries))
		for _, c := range entries {
			items = append(items, itemFor(di, models.Observation{
				Sequence:   c.Sequence,
				Timestamp:  c.Timestamp,
				DeviceKey:  di.DeviceKey,
				DataItemID: di.ID,
				Category:   di.Category,
				Values:     c.Values(),
			}))
		}
		return items
	}

	o, ok := snap.Latest(di.DeviceKey, di.ID)
	if !ok {
		o = models.Observation{
			DeviceKey:  di.DeviceKey,
			DataItemID: di.ID,
			Category:   di.Category,
			Values:     []string{models.Unavailable},
		}
	}
	return []Item{itemFor(di, o)}
}

// Sample 从 From 开始的历史窗口，先取缓冲区区间再按数据项过滤
func (e *Engine) Sample(req SampleRequest) (*StreamsResult, error) {
	count := e.opts.DefaultSampleCount
	if req.Count != nil {
		count = *req.Count
	}
	if count < 1 {
		return nil, models.NewError(models.KindInvalidRequest, models.CodeOutOfRange,
			"'count' must be greater than or equal to 1.")
	}
	if count > e.opts.MaxSampleCount {
		count = e.opts.MaxSampleCount
	}

	devs, byDevice, err := e.selection(req.Device, req.Path)
	if err != nil {
		return nil, err
	}

	obs, st, err := e.source.Sample(req.From, count)
	if err != nil {
		return nil, err
	}
	header := headerFromStats(st)
	from := header.FirstSequence
	if req.From != nil {
		from = *req.From
	}
	if len(obs) > 0 {
		header.NextSequence = obs[len(obs)-1].Sequence + 1
	} else if from < header.NextSequence {
		header.NextSequence = from
	}

	wanted := make(map[string]map[string]*models.DataItem)
	for key, items := range byDevice {
		m := make(map[string]*models.DataItem, len(items))
		for _, di := range items {
			m[di.ID] = di
		}
		wanted[key] = m
	}

	streams := make(map[string]*DeviceStream, len(devs))
	result := &StreamsResult{Header: header}
	for _, dev := range devs {
		result.Devices = append(result.Devices, DeviceStream{UUID: dev.UUID, Name: dev.Name, Items: []Item{}})
	}
	for i := range result.Devices {
		streams[result.Devices[i].UUID] = &result.Devices[i]
	}

	for _, o := range obs {
		di, ok := wanted[o.DeviceKey][o.DataItemID]
		if !ok {
			continue
		}
		s := streams[o.DeviceKey]
		s.Items = append(s.Items, itemFor(di, o))
	}
	return result, nil
}

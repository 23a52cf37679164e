package adapter

import (
	"strconv"
	"strings"
	"time"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

const multilinePrefix = "--multiline--"

// ItemLookup 解码时查询数据项以确定字段数
type ItemLookup interface {
	DataItem(deviceKey, key string) (*models.DataItem, bool)
}

// Decoder SHDR 行解码器，每个连接（设备）一个实例，不可并发使用
type Decoder struct {
	lookup    ItemLookup
	deviceKey string
	now       func() time.Time

	multiline *pendingAsset
}

type pendingAsset struct {
	timestamp  string
	assetID    string
	assetType  string
	terminator string
	lines      []string
}

// NewDecoder 创建解码器
func NewDecoder(lookup ItemLookup, deviceKey string, now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{lookup: lookup, deviceKey: deviceKey, now: now}
}

// InMultiline 是否正在读取多行资产
func (d *Decoder) InMultiline() bool {
	return d.multiline != nil
}

// Decode 解码一行；协议行、空行以及多行资产中间行返回 nil
func (d *Decoder) Decode(line string) *models.Batch {
	line = strings.TrimRight(line, "\r\n")

	if d.multiline != nil {
		return d.continueMultiline(line)
	}
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "*") {
		return nil
	}

	fields := strings.Split(line, "|")
	ts := strings.TrimSpace(fields[0])
	if ts == "" {
		ts = d.now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	rest := fields[1:]
	if len(rest) == 0 {
		return nil
	}

	batch := &models.Batch{Timestamp: ts, DeviceKey: d.deviceKey}
	switch strings.TrimSpace(rest[0]) {
	case models.AssetDirective:
		v := padFields(rest[1:], 3)
		content := strings.Join(v[2:], "|")
		if strings.HasPrefix(content, multilinePrefix) {
			d.multiline = &pendingAsset{
				timestamp:  ts,
				assetID:    v[0],
				assetType:  v[1],
				terminator: strings.TrimSpace(content),
			}
			return nil
		}
		batch.Updates = append(batch.Updates, models.FieldUpdate{
			Key:    models.AssetDirective,
			Values: []string{v[0], v[1], content},
		})
		return batch
	case models.RemoveAssetDirective:
		v := padFields(rest[1:], 1)
		batch.Updates = append(batch.Updates, models.FieldUpdate{
			Key:    models.RemoveAssetDirective,
			Values: []string{v[0]},
		})
		return batch
	}

	for i := 0; i < len(rest); {
		key := strings.TrimSpace(rest[i])
		i++
		arity := 1
		if item, ok := d.lookup.DataItem(d.deviceKey, key); ok {
			arity = item.Arity()
		}
		end := i + arity
		if end > len(rest) {
			end = len(rest)
		}
		values := padFields(rest[i:end], arity)
		for j := range values {
			values[j] = strings.TrimSpace(values[j])
		}
		i = end
		if key == "" {
			continue
		}
		batch.Updates = append(batch.Updates, models.FieldUpdate{Key: key, Values: values})
	}
	if len(batch.Updates) == 0 {
		return nil
	}
	return batch
}

func (d *Decoder) continueMultiline(line string) *models.Batch {
	p := d.multiline
	if strings.TrimSpace(line) != p.terminator {
		p.lines = append(p.lines, line)
		return nil
	}
	d.multiline = nil
	return &models.Batch{
		Timestamp: p.timestamp,
		DeviceKey: d.deviceKey,
		Updates: []models.FieldUpdate{{
			Key:    models.AssetDirective,
			Values: []string{p.assetID, p.assetType, strings.Join(p.lines, "\n")},
		}},
	}
}

// ParseHeartbeat 解析 "* PONG <ms>"，返回心跳间隔
func ParseHeartbeat(line string) (time.Duration, bool) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "*"))
	if len(fields) != 2 || fields[0] != "PONG" {
		return 0, false
	}
	ms, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// padFields 复制并补齐到至少 n 个字段
func padFields(values []string, n int) []string {
	if len(values) > n {
		n = len(values)
	}
	out := make([]string, n)
	copy(out, values)
	return out
}

package schema

import (
	"github.com/harrywg/mtconnect-agent/internal/models"
)

// Catalog 设备目录：设备/数据项索引和路径解析
type Catalog struct {
	devices []*models.Device
	byKey   map[string]*models.Device
	items   map[string]map[string]*models.DataItem
	trees   map[string]*node
}

func build(f *File) *Catalog {
	c := &Catalog{
		byKey: make(map[string]*models.Device),
		items: make(map[string]map[string]*models.DataItem),
		trees: make(map[string]*node),
	}
	for _, ds := range f.Devices {
		dev := &models.Device{
			UUID:        ds.UUID,
			ID:          ds.ID,
			Name:        ds.Name,
			Description: ds.Description,
		}
		root := &node{element: "Device", attrs: map[string]string{"id": ds.ID, "uuid": ds.UUID, "name": ds.Name}}
		dev.DataItems = convertItems(dev.UUID, ds.ID, ds.DataItems, root)
		dev.Components = convertComponents(dev.UUID, ds.Components, root)

		for _, di := range dev.DataItems {
			switch di.Type {
			case models.TypeAssetChanged:
				dev.AssetChangedID = di.ID
			case models.TypeAssetRemoved:
				dev.AssetRemovedID = di.ID
			}
		}

		idx := make(map[string]*models.DataItem)
		all := dev.AllDataItems()
		for _, di := range all {
			idx[di.ID] = di
		}
		// 名称查找不覆盖 id
		for _, di := range all {
			if di.Name == "" {
				continue
			}
			if _, ok := idx[di.Name]; !ok {
				idx[di.Name] = di
			}
		}

		c.devices = append(c.devices, dev)
		c.byKey[dev.UUID] = dev
		c.byKey[dev.Name] = dev
		c.items[dev.UUID] = idx
		c.trees[dev.UUID] = root
	}
	return c
}

func convertComponents(deviceKey string, specs []ComponentSpec, parent *node) []*models.Component {
	var out []*models.Component
	for _, cs := range specs {
		comp := &models.Component{ID: cs.ID, Type: cs.Type, Name: cs.Name}
		n := &node{element: cs.Type, attrs: map[string]string{"id": cs.ID, "name": cs.Name}}
		parent.children = append(parent.children, n)
		comp.DataItems = convertItems(deviceKey, cs.ID, cs.DataItems, n)
		comp.Components = convertComponents(deviceKey, cs.Components, n)
		out = append(out, comp)
	}
	return out
}

func convertItems(deviceKey, componentID string, specs []DataItemSpec, parent *node) []*models.DataItem {
	var out []*models.DataItem
	for _, s := range specs {
		di := &models.DataItem{
			ID:             s.ID,
			Name:           s.Name,
			Type:           s.Type,
			SubType:        s.SubType,
			Category:       models.Category(s.Category),
			Representation: models.Representation(s.Representation),
			Units:          s.Units,
			DeviceKey:      deviceKey,
			ComponentID:    componentID,
		}
		if s.Filter != nil {
			di.Filter = &models.Filter{Kind: models.FilterKind(s.Filter.Type), Value: s.Filter.Value}
		}
		if s.Constraint != nil {
			di.Constraint = &models.Constraint{Constant: s.Constraint.Value, Allowed: s.Constraint.Values}
		}
		parent.children = append(parent.children, &node{
			element: "DataItem",
			attrs: map[string]string{
				"id":             s.ID,
				"name":           s.Name,
				"type":           s.Type,
				"subType":        s.SubType,
				"category":       s.Category,
				"representation": s.Representation,
				"units":          s.Units,
			},
			item: di,
		})
		out = append(out, di)
	}
	return out
}

// Devices 全部设备，按文件顺序
func (c *Catalog) Devices() []*models.Device {
	return c.devices
}

// Device 按 uuid 或名称查找设备
func (c *Catalog) Device(key string) (*models.Device, bool) {
	d, ok := c.byKey[key]
	return d, ok
}

// DataItem 在设备内按 id 或名称查找数据项，deviceKey 可为 uuid 或名称
func (c *Catalog) DataItem(deviceKey, key string) (*models.DataItem, bool) {
	dev, ok := c.byKey[deviceKey]
	if !ok {
		return nil, false
	}
	di, ok := c.items[dev.UUID][key]
	return di, ok
}

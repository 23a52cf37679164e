package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

// File 设备描述文件
type File struct {
	Devices []DeviceSpec `yaml:"devices"`
}

// DeviceSpec 设备
type DeviceSpec struct {
	UUID        string          `yaml:"uuid"`
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	DataItems   []DataItemSpec  `yaml:"data_items"`
	Components  []ComponentSpec `yaml:"components"`
}

// ComponentSpec 组件
type ComponentSpec struct {
	ID         string          `yaml:"id"`
	Type       string          `yaml:"type"`
	Name       string          `yaml:"name"`
	DataItems  []DataItemSpec  `yaml:"data_items"`
	Components []ComponentSpec `yaml:"components"`
}

// DataItemSpec 数据项
type DataItemSpec struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Type           string          `yaml:"type"`
	SubType        string          `yaml:"sub_type"`
	Category       string          `yaml:"category"`
	Representation string          `yaml:"representation"`
	Units          string          `yaml:"units"`
	Filter         *FilterSpec     `yaml:"filter"`
	Constraint     *ConstraintSpec `yaml:"constraint"`
}

// FilterSpec 过滤器
type FilterSpec struct {
	Type  string  `yaml:"type"`
	Value float64 `yaml:"value"`
}

// ConstraintSpec 约束，value 为固定值，values 为允许值列表
type ConstraintSpec struct {
	Value  *string  `yaml:"value"`
	Values []string `yaml:"values"`
}

// Load 读取并解析设备描述文件
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 设备描述
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse devices file: %w", err)
	}
	applyDefaults(&f)
	if err := validate(&f); err != nil {
		return nil, err
	}
	return build(&f), nil
}

func applyDefaults(f *File) {
	for i := range f.Devices {
		d := &f.Devices[i]
		if d.ID == "" {
			d.ID = d.Name
		}
		if d.UUID == "" {
			d.UUID = d.Name
		}
		defaultItems(d.DataItems)
		defaultComponents(d.Components)
		addAssetItems(d)
	}
}

func defaultComponents(cs []ComponentSpec) {
	for i := range cs {
		if cs[i].ID == "" {
			cs[i].ID = strings.ToLower(cs[i].Type + "_" + cs[i].Name)
		}
		defaultItems(cs[i].DataItems)
		defaultComponents(cs[i].Components)
	}
}

func defaultItems(items []DataItemSpec) {
	for i := range items {
		it := &items[i]
		it.Category = strings.ToUpper(it.Category)
		it.Type = strings.ToUpper(it.Type)
		it.Representation = strings.ToUpper(it.Representation)
		if it.Representation == "" {
			it.Representation = string(models.RepresentationValue)
		}
		if it.Type == models.TypeAssetChanged || it.Type == models.TypeAssetRemoved {
			it.Representation = string(models.RepresentationDiscrete)
		}
		if it.Filter != nil {
			it.Filter.Type = strings.ToUpper(it.Filter.Type)
		}
	}
}

// addAssetItems 设备未声明时补充 ASSET_CHANGED / ASSET_REMOVED 事件
func addAssetItems(d *DeviceSpec) {
	has := func(typ string) bool {
		for _, it := range d.DataItems {
			if it.Type == typ {
				return true
			}
		}
		return false
	}
	if !has(models.TypeAssetChanged) {
		d.DataItems = append(d.DataItems, DataItemSpec{
			ID: d.ID + "_asset_chg", Type: models.TypeAssetChanged,
			Category: string(models.CategoryEvent), Representation: string(models.RepresentationDiscrete),
		})
	}
	if !has(models.TypeAssetRemoved) {
		d.DataItems = append(d.DataItems, DataItemSpec{
			ID: d.ID + "_asset_rem", Type: models.TypeAssetRemoved,
			Category: string(models.CategoryEvent), Representation: string(models.RepresentationDiscrete),
		})
	}
}

func validate(f *File) error {
	if len(f.Devices) == 0 {
		return fmt.Errorf("no devices defined")
	}
	seen := make(map[string]bool)
	for _, d := range f.Devices {
		if d.Name == "" {
			return fmt.Errorf("device name is required")
		}
		if seen[d.UUID] || seen[d.Name] {
			return fmt.Errorf("duplicate device %s", d.Name)
		}
		seen[d.UUID], seen[d.Name] = true, true

		ids := make(map[string]bool)
		check := func(items []DataItemSpec) error {
			for _, it := range items {
				if it.ID == "" {
					return fmt.Errorf("device %s: data item id is required", d.Name)
				}
				if ids[it.ID] {
					return fmt.Errorf("device %s: duplicate data item id %s", d.Name, it.ID)
				}
				ids[it.ID] = true
				switch models.Category(it.Category) {
				case models.CategorySample, models.CategoryEvent, models.CategoryCondition:
				default:
					return fmt.Errorf("device %s: data item %s has invalid category %q", d.Name, it.ID, it.Category)
				}
				switch models.Representation(it.Representation) {
				case models.RepresentationValue, models.RepresentationDiscrete:
				default:
					return fmt.Errorf("device %s: data item %s has unsupported representation %q", d.Name, it.ID, it.Representation)
				}
				if it.Filter != nil {
					switch models.FilterKind(it.Filter.Type) {
					case models.FilterMinimumDelta, models.FilterPeriod:
					default:
						return fmt.Errorf("device %s: data item %s has invalid filter %q", d.Name, it.ID, it.Filter.Type)
					}
					if it.Filter.Value < 0 {
						return fmt.Errorf("device %s: data item %s filter value must not be negative", d.Name, it.ID)
					}
				}
			}
			return nil
		}
		if err := check(d.DataItems); err != nil {
			return err
		}
		var walk func(cs []ComponentSpec) error
		walk = func(cs []ComponentSpec) error {
			for _, c := range cs {
				if c.Type == "" {
					return fmt.Errorf("device %s: component type is required", d.Name)
				}
				if err := check(c.DataItems); err != nil {
					return err
				}
				if err := walk(c.Components); err != nil {
					return err
				}
			}
			return nil
		}
		if err := walk(d.Components); err != nil {
			return err
		}
	}
	return nil
}

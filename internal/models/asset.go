package models

import "regexp"

// Asset 资产文档
type Asset struct {
	AssetID   string `json:"assetId"`
	AssetType string `json:"assetType"`
	DeviceKey string `json:"deviceUuid,omitempty"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Removed   bool   `json:"removed"`
}

// AssetFilter 资产列表查询条件
type AssetFilter struct {
	Type           string
	DeviceKey      string
	IncludeRemoved bool
	Limit          int
}

// SHDR 资产指令
const (
	AssetDirective       = "@ASSET@"
	RemoveAssetDirective = "@REMOVE_ASSET@"
)

// FieldUpdate 一行输入中的单个字段更新
type FieldUpdate struct {
	Key    string
	Values []string
}

// Batch 一行输入解码后的批次
type Batch struct {
	Timestamp string
	DeviceKey string
	Updates   []FieldUpdate
}

var removedMarker = regexp.MustCompile(`^\s*(<\?[^>]*\?>\s*)?<[^>]*\sremoved\s*=\s*["']true["']`)

// ContentMarkedRemoved 资产文档根元素带 removed="true" 时返回 true
func ContentMarkedRemoved(content string) bool {
	return removedMarker.MatchString(content)
}

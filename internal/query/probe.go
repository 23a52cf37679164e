package query

import "github.com/harrywg/mtconnect-agent/internal/models"

// Probe 设备结构描述
func (e *Engine) Probe(device string) (*DevicesResult, error) {
	devs, err := e.devices(device)
	if err != nil {
		return nil, err
	}
	return &DevicesResult{Header: e.Header(), Devices: devs}, nil
}

// Assets 资产列表，最近插入的在前
func (e *Engine) Assets(req AssetRequest) (*AssetsResult, error) {
	f := models.AssetFilter{
		Type:           req.Type,
		DeviceKey:      req.Device,
		IncludeRemoved: req.IncludeRemoved,
	}
	if req.Count != nil {
		if *req.Count < 1 {
			return nil, models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest,
				"'count' must be greater than or equal to 1.")
		}
		f.Limit = *req.Count
	}
	assets, err := e.source.ListAssets(f)
	if err != nil {
		return nil, err
	}
	return &AssetsResult{Header: e.Header(), Assets: assets}, nil
}

// Asset 按 id 查询，任一 id 不存在即返回 ASSET_NOT_FOUND
func (e *Engine) Asset(ids ...string) (*AssetsResult, error) {
	result := &AssetsResult{Header: e.Header(), Assets: make([]models.Asset, 0, len(ids))}
	for _, id := range ids {
		a, err := e.source.GetAsset(id)
		if err != nil {
			return nil, err
		}
		result.Assets = append(result.Assets, a)
	}
	return result, nil
}

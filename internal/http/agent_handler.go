package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/models"
	"github.com/harrywg/mtconnect-agent/internal/query"
)

const maxAssetBytes = 1 << 20

// QueryEngine 由 *query.Engine 实现
type QueryEngine interface {
	Header() query.Header
	Probe(device string) (*query.DevicesResult, error)
	Current(req query.CurrentRequest) (*query.StreamsResult, error)
	Sample(req query.SampleRequest) (*query.StreamsResult, error)
	Assets(req query.AssetRequest) (*query.AssetsResult, error)
	Asset(ids ...string) (*query.AssetsResult, error)
}

// AssetStore 资产写入，由 *store.Store 实现
type AssetStore interface {
	InsertAsset(a models.Asset) error
	ReplaceAsset(a models.Asset) error
	RemoveAsset(id, timestamp string, content *string) error
}

// RequestObserver 请求指标，由 *metrics.Metrics 实现
type RequestObserver interface {
	ObserveRequest(route string, code int, d time.Duration)
}

// AgentHandler probe / current / sample / assets 请求
type AgentHandler struct {
	engine   QueryEngine
	assets   AssetStore
	allowPut bool
	observer RequestObserver
	logger   *zap.Logger
}

// NewAgentHandler 创建 Handler；observer 可为 nil
func NewAgentHandler(engine QueryEngine, assets AssetStore, allowPut bool, observer RequestObserver, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		engine:   engine,
		assets:   assets,
		allowPut: allowPut,
		observer: observer,
		logger:   logger,
	}
}

// ErrorEntry 单条错误
type ErrorEntry struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// ErrorDocument 错误响应
type ErrorDocument struct {
	Header query.Header `json:"header"`
	Errors []ErrorEntry `json:"errors"`
}

// ServeHTTP 实现 http.Handler 接口
func (h *AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	route := h.dispatch(sw, r)

	if h.observer != nil {
		h.observer.ObserveRequest(route, sw.status, time.Since(start))
	}
}

// dispatch 路由分发，返回用于指标的路由名
func (h *AgentHandler) dispatch(w http.ResponseWriter, r *http.Request) string {
	trimmed := strings.Trim(r.URL.Path, "/")
	var segs []string
	if trimmed != "" {
		segs = strings.Split(trimmed, "/")
	}

	// 资产写入
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		if !h.allowPut {
			h.writeError(w, models.NewError(models.KindUnsupported, models.CodeUnsupported,
				"Only the HTTP GET request is supported"))
			return "unsupported"
		}
		if len(segs) == 2 && (segs[0] == "assets" || segs[0] == "asset") {
			h.StoreAsset(w, r, segs[1])
			return "asset_write"
		}
		if len(segs) == 1 && (segs[0] == "assets" || segs[0] == "asset") {
			h.writeError(w, models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest,
				"An asset id is required"))
			return "asset_write"
		}
		h.invalidPath(w, r)
		return "invalid"
	}
	if r.Method != http.MethodGet {
		h.writeError(w, models.NewError(models.KindUnsupported, models.CodeUnsupported,
			"The following method is not supported: %s", r.Method))
		return "unsupported"
	}

	switch len(segs) {
	case 0:
		h.Probe(w, r, "")
		return "probe"
	case 1:
		switch segs[0] {
		case "probe":
			h.Probe(w, r, "")
			return "probe"
		case "current":
			h.Current(w, r, "")
			return "current"
		case "sample":
			h.Sample(w, r, "")
			return "sample"
		case "assets", "asset":
			h.ListAssets(w, r, "")
			return "assets"
		}
		// /{device}
		h.Probe(w, r, segs[0])
		return "probe"
	case 2:
		switch segs[0] {
		case "assets", "asset":
			h.GetAssets(w, r, segs[1])
			return "asset"
		}
		device := segs[0]
		switch segs[1] {
		case "probe":
			h.Probe(w, r, device)
			return "probe"
		case "current":
			h.Current(w, r, device)
			return "current"
		case "sample":
			h.Sample(w, r, device)
			return "sample"
		case "assets", "asset":
			h.ListAssets(w, r, device)
			return "assets"
		}
	}
	h.invalidPath(w, r)
	return "invalid"
}

// Probe GET /probe, /{device}/probe
func (h *AgentHandler) Probe(w http.ResponseWriter, r *http.Request, device string) {
	result, err := h.engine.Probe(device)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"MTConnectDevices": result})
}

// Current GET /current?path=&at=
func (h *AgentHandler) Current(w http.ResponseWriter, r *http.Request, device string) {
	q := r.URL.Query()
	at, err := parseUint(q.Get("at"))
	if err != nil {
		h.writeError(w, invalidParam("at"))
		return
	}
	result, err := h.engine.Current(query.CurrentRequest{Device: device, Path: q.Get("path"), At: at})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"MTConnectStreams": result})
}

// Sample GET /sample?path=&from=&count=
func (h *AgentHandler) Sample(w http.ResponseWriter, r *http.Request, device string) {
	q := r.URL.Query()
	from, err := parseUint(q.Get("from"))
	if err != nil {
		h.writeError(w, invalidParam("from"))
		return
	}
	count, err := parseOptionalInt(q.Get("count"))
	if err != nil {
		h.writeError(w, invalidParam("count"))
		return
	}
	result, err := h.engine.Sample(query.SampleRequest{Device: device, Path: q.Get("path"), From: from, Count: count})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"MTConnectStreams": result})
}

// ListAssets GET /assets?type=&removed=&count=&device=
func (h *AgentHandler) ListAssets(w http.ResponseWriter, r *http.Request, device string) {
	q := r.URL.Query()
	count, err := parseOptionalInt(q.Get("count"))
	if err != nil {
		h.writeError(w, invalidParam("count"))
		return
	}
	if device == "" {
		device = q.Get("device")
	}
	result, err := h.engine.Assets(query.AssetRequest{
		Device:         device,
		Type:           q.Get("type"),
		IncludeRemoved: q.Get("removed") == "true",
		Count:          count,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"MTConnectAssets": result})
}

// GetAssets GET /assets/{id;id}
func (h *AgentHandler) GetAssets(w http.ResponseWriter, r *http.Request, idList string) {
	var ids []string
	for _, id := range strings.Split(idList, ";") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		h.invalidPath(w, r)
		return
	}
	result, err := h.engine.Asset(ids...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"MTConnectAssets": result})
}

// StoreAsset POST 新增，PUT 替换；内容根元素带 removed="true" 时标记删除
func (h *AgentHandler) StoreAsset(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, ";") {
		h.writeError(w, models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest,
			"A single asset id is required"))
		return
	}
	content, err := readBody(r, maxAssetBytes)
	if err != nil {
		h.writeError(w, models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest,
			"Failed to read asset content"))
		return
	}

	q := r.URL.Query()
	a := models.Asset{
		AssetID:   id,
		AssetType: q.Get("type"),
		DeviceKey: q.Get("device"),
		Timestamp: q.Get("time"),
		Content:   content,
	}

	switch {
	case r.Method == http.MethodPut && models.ContentMarkedRemoved(content):
		err = h.assets.RemoveAsset(id, a.Timestamp, &content)
	case r.Method == http.MethodPut:
		err = h.assets.ReplaceAsset(a)
	default:
		err = h.assets.InsertAsset(a)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("Asset stored",
		zap.String("method", r.Method),
		zap.String("asset_id", id),
		zap.String("asset_type", a.AssetType),
	)

	result, err := h.engine.Asset(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"MTConnectAssets": result})
}

func (h *AgentHandler) invalidPath(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, models.NewError(models.KindUnsupported, models.CodeUnsupported,
		"The following path is invalid: %s.", r.URL.Path))
}

// writeError 按错误类型映射 HTTP 状态码
func (h *AgentHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "Internal error"

	var merr *models.Error
	if errors.As(err, &merr) {
		code = merr.Code
		message = merr.Message
		switch merr.Kind {
		case models.KindNotFound:
			status = http.StatusNotFound
		case models.KindConflict:
			status = http.StatusConflict
		default:
			status = http.StatusBadRequest
		}
		h.logger.Debug("Request failed", zap.String("error_code", code), zap.String("message", message))
	} else {
		h.logger.Error("Unexpected request error", zap.Error(err))
	}

	writeJSON(w, status, map[string]any{"MTConnectError": ErrorDocument{
		Header: h.engine.Header(),
		Errors: []ErrorEntry{{ErrorCode: code, Message: message}},
	}})
}

func invalidParam(name string) error {
	return models.NewError(models.KindInvalidRequest, models.CodeInvalidRequest,
		"'%s' must be a positive integer.", name)
}

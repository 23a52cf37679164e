package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAgentRoutes agent 的全部请求都由 AgentHandler 按路径分发
// 路径格式: /[{device}/]{probe|current|sample|assets}，/assets/{id;id}，/asset/{id}
func (r *Router) RegisterAgentRoutes(h *AgentHandler) {
	r.HandleHandler("/", h)
}

// RegisterMetricsRoute 注册 prometheus 抓取入口
func (r *Router) RegisterMetricsRoute(h http.Handler) {
	r.mux.Handle("/metrics", h)
}

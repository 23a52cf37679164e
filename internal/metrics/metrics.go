package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harrywg/mtconnect-agent/internal/store"
)

const namespace = "mtconnect"

// StatsSource 存储统计来源，由 *store.Store 实现
type StatsSource interface {
	Stats() store.Stats
}

// SinkStats 输出统计来源，由 *sink.Dispatcher 实现
type SinkStats interface {
	Dropped() uint64
	Delivered() uint64
	Failed() uint64
}

// Metrics agent 指标；存储和输出统计在抓取时读取
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New 创建并注册指标，sinks 可为 nil
func New(reg prometheus.Registerer, src StatsSource, sinks SinkStats) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"route"}),
	}

	stat := func(f func(store.Stats) float64) func() float64 {
		return func() float64 { return f(src.Stats()) }
	}

	collectors := []prometheus.Collector{
		m.requests,
		m.latency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "buffer_size",
			Help: "Capacity of the observation buffer.",
		}, stat(func(s store.Stats) float64 { return float64(s.BufferSize) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "first_sequence",
			Help: "Oldest sequence number still in the buffer.",
		}, stat(func(s store.Stats) float64 { return float64(s.FirstSequence) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "next_sequence",
			Help: "Sequence number the next observation will receive.",
		}, stat(func(s store.Stats) float64 { return float64(s.NextSequence) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "asset_count",
			Help: "Assets currently held in the asset buffer.",
		}, stat(func(s store.Stats) float64 { return float64(s.AssetCount) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_accepted_total",
			Help: "Observations appended to the buffer.",
		}, stat(func(s store.Stats) float64 { return float64(s.Accepted) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_duplicate_total",
			Help: "Updates suppressed as duplicates.",
		}, stat(func(s store.Stats) float64 { return float64(s.Duplicates) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_filtered_total",
			Help: "Updates suppressed by minimum delta or period filters.",
		}, stat(func(s store.Stats) float64 { return float64(s.Filtered) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_rejected_total",
			Help: "Updates rejected by constraints or invalid condition levels.",
		}, stat(func(s store.Stats) float64 { return float64(s.Rejected) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_unknown_total",
			Help: "Updates for data items not present in the device description.",
		}, stat(func(s store.Stats) float64 { return float64(s.Unknown) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "assets_evicted_total",
			Help: "Assets evicted from the asset buffer.",
		}, stat(func(s store.Stats) float64 { return float64(s.AssetsEvicted) })),
	}

	if sinks != nil {
		collectors = append(collectors,
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Name: "sink_dropped_total",
				Help: "Observations dropped because the sink queue was full.",
			}, func() float64 { return float64(sinks.Dropped()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Name: "sink_delivered_total",
				Help: "Observations written to sinks.",
			}, func() float64 { return float64(sinks.Delivered()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Name: "sink_failed_total",
				Help: "Observations that failed to write to a sink.",
			}, func() float64 { return float64(sinks.Failed()) }),
		)
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRequest 记录一次 HTTP 请求
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route).Observe(d.Seconds())
}

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrywg/mtconnect-agent/internal/store"
)

func TestMetrics_StoreAndSinkStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeStats{stats: store.Stats{
		BufferSize:    16,
		FirstSequence: 3,
		NextSequence:  19,
		AssetCount:    2,
		Accepted:      18,
		Duplicates:    4,
		Filtered:      1,
		Rejected:      1,
		Unknown:       5,
		AssetsEvicted: 1,
	}}
	_, err := New(reg, src, &fakeSinkStats{dropped: 7, delivered: 11})
	require.NoError(t, err)

	expected := `
# HELP mtconnect_next_sequence Sequence number the next observation will receive.
# TYPE mtconnect_next_sequence gauge
mtconnect_next_sequence 19
# HELP mtconnect_observations_duplicate_total Updates suppressed as duplicates.
# TYPE mtconnect_observations_duplicate_total counter
mtconnect_observations_duplicate_total 4
# HELP mtconnect_sink_dropped_total Observations dropped because the sink queue was full.
# TYPE mtconnect_sink_dropped_total counter
mtconnect_sink_dropped_total 7
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"mtconnect_next_sequence", "mtconnect_observations_duplicate_total", "mtconnect_sink_dropped_total"))

	// 抓取时读取最新值
	src.stats.NextSequence = 25
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP mtconnect_next_sequence Sequence number the next observation will receive.
# TYPE mtconnect_next_sequence gauge
mtconnect_next_sequence 25
`), "mtconnect_next_sequence"))
}

func TestMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, &fakeStats{}, nil)
	require.NoError(t, err)

	m.ObserveRequest("current", 200, 2*time.Millisecond)
	m.ObserveRequest("current", 200, 3*time.Millisecond)
	m.ObserveRequest("sample", 400, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("current", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("sample", "400")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.latency))

	count, err := testutil.GatherAndCount(reg, "mtconnect_sink_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, &fakeStats{}, nil)
	require.NoError(t, err)
	_, err = New(reg, &fakeStats{}, nil)
	assert.Error(t, err)
}

// 辅助函数

type fakeStats struct {
	stats store.Stats
}

func (f *fakeStats) Stats() store.Stats { return f.stats }

type fakeSinkStats struct {
	dropped, delivered, failed uint64
}

func (f *fakeSinkStats) Dropped() uint64   { return f.dropped }
func (f *fakeSinkStats) Delivered() uint64 { return f.delivered }
func (f *fakeSinkStats) Failed() uint64    { return f.failed }

package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

const testDevice = "000"

func TestNewStore_SeedsUnavailable(t *testing.T) {
	s, schema := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	st := s.Stats()
	itemCount := uint64(len(schema.devices[0].AllDataItems()))
	assert.Equal(t, uint64(1), st.FirstSequence)
	assert.Equal(t, itemCount+1, st.NextSequence)
	assert.Equal(t, itemCount, st.LastSequence)

	snap, err := s.Current(nil)
	require.NoError(t, err)
	assert.Equal(t, models.Unavailable, latestValue(t, snap, "line"))
	assert.Equal(t, "SPINDLE", latestValue(t, snap, "rmode"))

	cond, ok := snap.Condition(testDevice, "htemp")
	require.True(t, ok)
	require.Len(t, cond, 1)
	assert.Equal(t, models.SeverityUnavailable, cond[0].Severity)
}

func TestIngest_SequenceAndDuplicates(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})
	_, _, next := s.Sequences()

	require.NoError(t, s.Ingest(batch("TIME", "line", "204")))
	require.NoError(t, s.Ingest(batch("TIME", "line", "204")))
	_, _, after := s.Sequences()
	assert.Equal(t, next+1, after)

	require.NoError(t, s.Ingest(batch("TIME", "block", "G01X1")))
	require.NoError(t, s.Ingest(batch("TIME", "block", "G01X1")))
	_, _, after2 := s.Sequences()
	assert.Equal(t, after+2, after2)

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Duplicates)
}

func TestIngest_EmptyValueAndUnknownKey(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	require.NoError(t, s.Ingest(&models.Batch{Timestamp: "TIME", DeviceKey: testDevice, Updates: []models.FieldUpdate{
		{Key: "bad", Values: []string{"ignore"}},
		{Key: "dummy", Values: []string{"1244"}},
		{Key: "line", Values: []string{"204"}},
		{Key: "program", Values: []string{""}},
	}}))

	snap, err := s.Current(nil)
	require.NoError(t, err)
	assert.Equal(t, "204", latestValue(t, snap, "line"))
	assert.Equal(t, "", latestValue(t, snap, "program"))
	assert.Equal(t, uint64(2), s.Stats().Unknown)
}

func TestIngest_UnknownDevice(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	b := batch("TIME", "line", "1")
	b.DeviceKey = "nope"
	err := s.Ingest(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &models.Error{Kind: models.KindNotFound, Code: models.CodeNoDevice}))
}

func TestIngest_DeviceByNameAndItemByName(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	require.NoError(t, s.Ingest(&models.Batch{Timestamp: "TIME", DeviceKey: "VMC-3Axis", Updates: []models.FieldUpdate{
		{Key: "Xact", Values: []string{"10.5"}},
	}}))

	snap, err := s.Current(nil)
	require.NoError(t, err)
	assert.Equal(t, "10.5", latestValue(t, snap, "Xpos"))
}

func TestIngest_ConditionOrdering(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	ingestCondition(t, s, "fault", "4200", "Overtemp")
	ingestCondition(t, s, "fault", "2218", "Spindle")
	ingestCondition(t, s, "warning", "3600", "Coolant")
	assert.Equal(t, []string{"4200", "2218", "3600"}, currentCodes(t, s))

	ingestCondition(t, s, "fault", "2218", "Spindle overload")
	assert.Equal(t, []string{"4200", "2218", "3600"}, currentCodes(t, s))

	// 相同字段重复断言不产生新序列号
	_, _, next := s.Sequences()
	ingestCondition(t, s, "fault", "2218", "Spindle overload")
	_, _, after := s.Sequences()
	assert.Equal(t, next, after)

	ingestCondition(t, s, "normal", "4200", "")
	assert.Equal(t, []string{"2218", "3600"}, currentCodes(t, s))

	ingestCondition(t, s, "normal", "", "")
	snap, err := s.Current(nil)
	require.NoError(t, err)
	cond, _ := snap.Condition(testDevice, "htemp")
	require.Len(t, cond, 1)
	assert.Equal(t, models.SeverityNormal, cond[0].Severity)
	assert.Empty(t, cond[0].NativeCode)

	_, _, next = s.Sequences()
	ingestCondition(t, s, "normal", "", "")
	ingestCondition(t, s, "normal", "9999", "")
	_, _, after = s.Sequences()
	assert.Equal(t, next, after)

	ingestCondition(t, s, "unavailable", "", "")
	snap, err = s.Current(nil)
	require.NoError(t, err)
	cond, _ = snap.Condition(testDevice, "htemp")
	require.Len(t, cond, 1)
	assert.Equal(t, models.SeverityUnavailable, cond[0].Severity)
}

func TestIngest_InvalidSeverityRejected(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})
	_, _, next := s.Sequences()

	ingestCondition(t, s, "bogus", "1", "")

	_, _, after := s.Sequences()
	assert.Equal(t, next, after)
	assert.Equal(t, uint64(1), s.Stats().Rejected)
}

func TestIngest_MinimumDelta(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})
	_, _, from := s.Sequences()

	require.NoError(t, s.Ingest(&models.Batch{Timestamp: "TIME", DeviceKey: testDevice, Updates: []models.FieldUpdate{
		{Key: "load", Values: []string{"100"}},
		{Key: "load", Values: []string{"103"}},
		{Key: "load", Values: []string{"106"}},
		{Key: "load", Values: []string{"108"}},
		{Key: "load", Values: []string{"112"}},
	}}))

	assert.Equal(t, []string{"100", "106", "112"}, rangeValues(t, s, from, "load"))
	assert.Equal(t, uint64(2), s.Stats().Filtered)

	// UNAVAILABLE 之后的第一个值总是接受
	require.NoError(t, s.Ingest(batch("TIME", "load", "UNAVAILABLE")))
	require.NoError(t, s.Ingest(batch("TIME", "load", "113")))
	require.NoError(t, s.Ingest(batch("TIME", "load", "not-a-number")))
	assert.Equal(t, []string{"100", "106", "112", "UNAVAILABLE", "113", "not-a-number"}, rangeValues(t, s, from, "load"))
}

func TestIngest_Period(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4, Now: clock.Now})
	_, _, from := s.Sequences()

	require.NoError(t, s.Ingest(batch("TIME", "temp", "20")))
	clock.advance(5 * time.Second)
	require.NoError(t, s.Ingest(batch("TIME", "temp", "21")))
	clock.advance(5 * time.Second)
	require.NoError(t, s.Ingest(batch("TIME", "temp", "22")))

	assert.Equal(t, []string{"20", "22"}, rangeValues(t, s, from, "temp"))
}

func TestIngest_Constraints(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})
	_, _, next := s.Sequences()

	require.NoError(t, s.Ingest(batch("TIME", "rmode", "INDEX")))
	_, _, after := s.Sequences()
	assert.Equal(t, next, after)

	require.NoError(t, s.Ingest(batch("TIME", "mode", "BOGUS")))
	require.NoError(t, s.Ingest(batch("TIME", "mode", "MANUAL")))

	snap, err := s.Current(nil)
	require.NoError(t, err)
	assert.Equal(t, "SPINDLE", latestValue(t, snap, "rmode"))
	assert.Equal(t, "MANUAL", latestValue(t, snap, "mode"))
	assert.Equal(t, uint64(1), s.Stats().Rejected)
}

func TestRingOverwrite_CheckpointReplay(t *testing.T) {
	s, schema := newTestStore(t, Options{BufferSize: 16, AssetBufferSize: 4})
	seeded := len(schema.devices[0].AllDataItems())
	require.Equal(t, 14, seeded)

	require.NoError(t, s.Ingest(batch("T1", "line", "1")))
	ingestCondition(t, s, "fault", "4200", "Overtemp")
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Ingest(batch("T2", "block", "B")))
	}

	first, last, next := s.Sequences()
	assert.Equal(t, uint64(11), first)
	assert.Equal(t, uint64(26), last)
	assert.Equal(t, uint64(27), next)

	_, err := s.Range(1, 10)
	assert.True(t, errors.Is(err, models.ErrOutOfRange))
	_, err = s.Range(28, 10)
	assert.True(t, errors.Is(err, models.ErrOutOfRange))
	obs, err := s.Range(27, 10)
	require.NoError(t, err)
	assert.Empty(t, obs)
	obs, err = s.Range(20, 100)
	require.NoError(t, err)
	assert.Len(t, obs, 7)

	at := uint64(14)
	snap, err := s.Current(&at)
	require.NoError(t, err)
	assert.Equal(t, models.Unavailable, latestValue(t, snap, "line"))
	cond, _ := snap.Condition(testDevice, "htemp")
	assert.Equal(t, models.SeverityUnavailable, cond[0].Severity)

	at = 16
	snap, err = s.Current(&at)
	require.NoError(t, err)
	assert.Equal(t, "1", latestValue(t, snap, "line"))
	cond, _ = snap.Condition(testDevice, "htemp")
	assert.Equal(t, "4200", cond[0].NativeCode)

	at = 10
	_, err = s.Current(&at)
	assert.True(t, errors.Is(err, models.ErrOutOfRange))
	at = 27
	_, err = s.Current(&at)
	assert.True(t, errors.Is(err, models.ErrOutOfRange))

	// 初始值和 line/htemp 全部被覆盖后仍可从 checkpoint 还原
	for i := 0; i < 16; i++ {
		require.NoError(t, s.Ingest(batch("T3", "block", "C")))
	}
	first, last, _ = s.Sequences()
	assert.Equal(t, uint64(27), first)
	assert.Equal(t, uint64(16), last-first+1)

	at = first
	snap, err = s.Current(&at)
	require.NoError(t, err)
	assert.Equal(t, "1", latestValue(t, snap, "line"))
	assert.Equal(t, "SPINDLE", latestValue(t, snap, "rmode"))
	cond, _ = snap.Condition(testDevice, "htemp")
	require.Len(t, cond, 1)
	assert.Equal(t, "4200", cond[0].NativeCode)
}

func TestListener_ReceivesCommitted(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	var got []models.Observation
	s.Subscribe(func(obs []models.Observation) {
		got = append(got, obs...)
	})

	require.NoError(t, s.Ingest(batch("TIME", "line", "5")))
	require.NoError(t, s.Ingest(batch("TIME", "line", "5")))

	require.Len(t, got, 1)
	assert.Equal(t, "line", got[0].DataItemID)
	assert.Equal(t, []string{"5"}, got[0].Values)
	assert.Equal(t, "TIME", got[0].Timestamp)
}

func TestListener_OrderedUnderConcurrentIngest(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 16, AssetBufferSize: 4})

	var seqs []uint64
	s.Subscribe(func(obs []models.Observation) {
		for _, o := range obs {
			seqs = append(seqs, o.Sequence)
		}
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.NoError(t, s.Ingest(batch("TIME", "line", fmt.Sprintf("%d-%d", g, i))))
			}
		}(g)
	}
	wg.Wait()

	require.Len(t, seqs, 800)
	for i := 1; i < len(seqs); i++ {
		require.Equal(t, seqs[i-1]+1, seqs[i], "listener saw sequence %d after %d", seqs[i], seqs[i-1])
	}
}

func TestRegisterDevice_NotifiesListeners(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 64, AssetBufferSize: 4})

	var got []models.Observation
	s.Subscribe(func(obs []models.Observation) {
		got = append(got, obs...)
	})

	lathe := &models.Device{UUID: "001", ID: "lathe", Name: "Lathe", DataItems: []*models.DataItem{
		{ID: "lavail", Type: "AVAILABILITY", Category: models.CategoryEvent, DeviceKey: "001"},
	}}
	_, _, next := s.Sequences()
	s.RegisterDevice(lathe)

	require.Len(t, got, 1)
	assert.Equal(t, next, got[0].Sequence)
	assert.Equal(t, "lavail", got[0].DataItemID)
	assert.Equal(t, []string{models.Unavailable}, got[0].Values)

	// 已有状态的数据项不再重复写入
	s.RegisterDevice(lathe)
	assert.Len(t, got, 1)
}

func TestReads_ConsistentWithConcurrentWriter(t *testing.T) {
	s, _ := newTestStore(t, Options{BufferSize: 8, AssetBufferSize: 4})
	require.NoError(t, s.Ingest(batch("TIME", "line", "0")))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			assert.NoError(t, s.Ingest(batch("TIME", "line", fmt.Sprint(i))))
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for i := 0; i < 2000; i++ {
		obs, st, err := s.Sample(nil, 4)
		require.NoError(t, err)
		require.NotEmpty(t, obs)
		require.Equal(t, st.FirstSequence, obs[0].Sequence)
		require.Less(t, obs[len(obs)-1].Sequence, st.NextSequence)

		snap, err := s.Current(nil)
		require.NoError(t, err)
		line, ok := snap.Latest(testDevice, "line")
		require.True(t, ok)
		require.Equal(t, snap.Stats.LastSequence, line.Sequence)
		require.Equal(t, snap.Sequence, snap.Stats.LastSequence)
	}
}

// 辅助函数

type fakeSchema struct {
	devices []*models.Device
	items   map[string]map[string]*models.DataItem
}

func newFakeSchema(devs ...*models.Device) *fakeSchema {
	f := &fakeSchema{devices: devs, items: make(map[string]map[string]*models.DataItem)}
	for _, d := range devs {
		idx := make(map[string]*models.DataItem)
		for _, di := range d.AllDataItems() {
			di.DeviceKey = d.UUID
			idx[di.ID] = di
			if di.Name != "" {
				if _, ok := idx[di.Name]; !ok {
					idx[di.Name] = di
				}
			}
		}
		f.items[d.UUID] = idx
	}
	return f
}

func (f *fakeSchema) Devices() []*models.Device { return f.devices }

func (f *fakeSchema) Device(key string) (*models.Device, bool) {
	for _, d := range f.devices {
		if d.UUID == key || d.Name == key {
			return d, true
		}
	}
	return nil, false
}

func (f *fakeSchema) DataItem(deviceKey, key string) (*models.DataItem, bool) {
	di, ok := f.items[deviceKey][key]
	return di, ok
}

func testDeviceModel() *models.Device {
	spindle := "SPINDLE"
	return &models.Device{
		UUID: testDevice,
		ID:   "dev",
		Name: "VMC-3Axis",
		DataItems: []*models.DataItem{
			{ID: "avail", Type: "AVAILABILITY", Category: models.CategoryEvent},
			{ID: "asset_chg", Type: models.TypeAssetChanged, Category: models.CategoryEvent, Representation: models.RepresentationDiscrete},
			{ID: "asset_rem", Type: models.TypeAssetRemoved, Category: models.CategoryEvent, Representation: models.RepresentationDiscrete},
		},
		Components: []*models.Component{
			{ID: "axes", Type: "Axes", Components: []*models.Component{
				{ID: "x", Type: "Linear", Name: "X", DataItems: []*models.DataItem{
					{ID: "Xpos", Name: "Xact", Type: "POSITION", Category: models.CategorySample},
					{ID: "load", Type: "LOAD", Category: models.CategorySample, Filter: &models.Filter{Kind: models.FilterMinimumDelta, Value: 5}},
				}},
				{ID: "c", Type: "Rotary", Name: "C", DataItems: []*models.DataItem{
					{ID: "rmode", Type: "ROTARY_MODE", Category: models.CategoryEvent, Constraint: &models.Constraint{Constant: &spindle}},
					{ID: "temp", Type: "TEMPERATURE", Category: models.CategorySample, Filter: &models.Filter{Kind: models.FilterPeriod, Value: 10}},
				}},
			}},
			{ID: "ctrl", Type: "Controller", DataItems: []*models.DataItem{
				{ID: "htemp", Type: "TEMPERATURE", Category: models.CategoryCondition},
				{ID: "mode", Type: "CONTROLLER_MODE", Category: models.CategoryEvent, Constraint: &models.Constraint{Allowed: []string{"AUTOMATIC", "MANUAL"}}},
			}, Components: []*models.Component{
				{ID: "path", Type: "Path", DataItems: []*models.DataItem{
					{ID: "line", Type: "LINE", Category: models.CategoryEvent},
					{ID: "program", Type: "PROGRAM", Category: models.CategoryEvent},
					{ID: "exec", Type: "EXECUTION", Category: models.CategoryEvent},
					{ID: "block", Type: "BLOCK", Category: models.CategoryEvent, Representation: models.RepresentationDiscrete},
					{ID: "msg", Type: models.TypeMessage, Category: models.CategoryEvent},
				}},
			}},
		},
		AssetChangedID: "asset_chg",
		AssetRemovedID: "asset_rem",
	}
}

func newTestStore(t *testing.T, opts Options) (*Store, *fakeSchema) {
	t.Helper()
	schema := newFakeSchema(testDeviceModel())
	return NewStore(schema, opts, zap.NewNop()), schema
}

func batch(ts, key string, values ...string) *models.Batch {
	return &models.Batch{Timestamp: ts, DeviceKey: testDevice, Updates: []models.FieldUpdate{{Key: key, Values: values}}}
}

func ingestCondition(t *testing.T, s *Store, severity, code, msg string) {
	t.Helper()
	require.NoError(t, s.Ingest(batch("TIME", "htemp", severity, code, "", "", msg)))
}

func currentCodes(t *testing.T, s *Store) []string {
	t.Helper()
	snap, err := s.Current(nil)
	require.NoError(t, err)
	cond, ok := snap.Condition(testDevice, "htemp")
	require.True(t, ok)
	return codes(cond)
}

func latestValue(t *testing.T, snap *Snapshot, item string) string {
	t.Helper()
	o, ok := snap.Latest(testDevice, item)
	require.True(t, ok, "no value for %s", item)
	return o.Value()
}

func rangeValues(t *testing.T, s *Store, from uint64, item string) []string {
	t.Helper()
	obs, err := s.Range(from, 1000)
	require.NoError(t, err)
	var out []string
	for _, o := range obs {
		if o.DataItemID == item {
			out = append(out, o.Value())
		}
	}
	return out
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

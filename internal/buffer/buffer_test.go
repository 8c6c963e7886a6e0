package buffer

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

func reading(v float64, ts int64) *types.Reading {
	return types.NewReading(types.Temperature, ts, types.Numeric(v))
}

func values(rs []*types.Reading) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i], _ = r.Values[0].Float()
	}
	return out
}

func TestCapacityPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		capacity  int
		overwrite bool
		expect    []float64
	}{
		{"drop-new", 2, false, []float64{1, 2}},
		{"evict-oldest", 2, true, []float64{2, 3}},
		{"unbounded", 0, false, []float64{1, 2, 3}},
		{"unbounded-overwrite", 0, true, []float64{1, 2, 3}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			b := New(c.capacity, c.overwrite, WithLog[*types.Reading](log))
			b.Insert(reading(1, 1), false)
			b.Insert(reading(2, 2), false)
			b.Insert(reading(3, 3), false)
			assert.Equal(t, c.expect, values(b.Snapshot()))
			assert.Equal(t, len(c.expect), b.Len())
		})
	}
}

func TestInsertClones(t *testing.T) {
	t.Parallel()

	b := New[*types.Reading](0, false)
	r := reading(1, 10)
	b.Insert(r, false)
	r.SetValue(types.Numeric(99))
	r.SetTimestamp(20)

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, []float64{1}, values(snap))
	assert.Equal(t, int64(10), snap[0].Timestamp)

	snap[0].SetTimestamp(30)
	assert.Equal(t, int64(10), b.Snapshot()[0].Timestamp)
}

func TestInsertManyUseNow(t *testing.T) {
	t.Parallel()

	calls := 0
	clock := func() time.Time {
		calls++
		return time.Unix(1500000000+int64(calls), 0)
	}
	b := New(0, false, WithClock[*types.Reading](clock))
	b.InsertMany([]*types.Reading{reading(1, 0), reading(2, 5), reading(3, 0)}, true)
	assert.Equal(t, 1, calls)
	for _, r := range b.Snapshot() {
		assert.Equal(t, int64(1500000001), r.Timestamp)
	}

	b.InsertMany([]*types.Reading{reading(4, 7)}, false)
	assert.Equal(t, 1, calls)
	snap := b.Snapshot()
	assert.Equal(t, int64(7), snap[3].Timestamp)

	alarms := New(1, true, WithClock[*types.Alarm](clock))
	alarms.Insert(types.NewAlarm("HH"), true)
	alarms.Insert(types.NewAlarm("LL"), true)
	require.Equal(t, 1, alarms.Len())
	assert.Equal(t, "LL", alarms.Snapshot()[0].Ref)
	assert.Equal(t, int64(1500000003), alarms.Snapshot()[0].Timestamp)
}

func TestInsertNil(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	for _, useNow := range []bool{true, false} {
		b := New(0, false, WithLog[*types.Reading](log))
		require.NotPanics(t, func() {
			b.InsertMany([]*types.Reading{reading(1, 1), nil, reading(2, 2)}, useNow)
			b.Insert(nil, useNow)
		})
		assert.Equal(t, []float64{1, 2}, values(b.Snapshot()))

		data, err := b.MarshalBinary()
		require.NoError(t, err)
		restored, err := Unmarshal[*types.Reading](data)
		require.NoError(t, err)
		assert.Equal(t, 2, restored.Len())
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	b := New[*types.Alarm](3, false)
	b.Insert(types.NewAlarm("A"), false)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
	assert.Equal(t, 3, b.Capacity())
}

func TestReconfigure(t *testing.T) {
	t.Parallel()

	mk := func() *Buffer[*types.Reading] {
		b := New[*types.Reading](0, false)
		b.InsertMany([]*types.Reading{reading(1, 1), reading(2, 2), reading(3, 3)}, false)
		return b
	}

	b := mk()
	b.Reconfigure(2, false)
	assert.Equal(t, []float64{1, 2}, values(b.Snapshot()))
	b.Insert(reading(4, 4), false)
	assert.Equal(t, []float64{1, 2}, values(b.Snapshot()))

	b = mk()
	b.Reconfigure(2, true)
	assert.Equal(t, []float64{2, 3}, values(b.Snapshot()))
	b.Insert(reading(4, 4), false)
	assert.Equal(t, []float64{3, 4}, values(b.Snapshot()))

	b = mk()
	b.Reconfigure(0, true)
	assert.Equal(t, 3, b.Len())
	assert.True(t, b.Overwrite())
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	b := New[*types.Reading](3, true)
	b.InsertMany([]*types.Reading{
		reading(1, 100),
		types.NewReading(types.Accelerometer, 100, types.Numerics(0.1, 0.2, 0.3)...),
		types.NewReading(types.ReadingType{Ref: "S", DataType: types.DataString, Arity: 1}, 200, types.String("x")),
	}, false)

	data, err := b.MarshalBinary()
	require.NoError(t, err)

	restored, err := Unmarshal[*types.Reading](data)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Capacity())
	assert.True(t, restored.Overwrite())
	assert.Equal(t, b.Snapshot(), restored.Snapshot())

	empty := New[*types.Alarm](0, false)
	data, err = empty.MarshalBinary()
	require.NoError(t, err)
	assert.JSONEq(t, `{"capacity":0,"overwrite":false,"items":[]}`, string(data))
}

func TestUnmarshalMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
	}{
		{"garbage", `not json`},
		{"truncated", `{"capacity":2,"overwrite":true,"items":[`},
		{"no-capacity", `{"overwrite":true,"items":[]}`},
		{"negative-capacity", `{"capacity":-1,"overwrite":true,"items":[]}`},
		{"no-overwrite", `{"capacity":1,"items":[]}`},
		{"no-items", `{"capacity":1,"overwrite":false}`},
		{"over-capacity", `{"capacity":1,"overwrite":false,"items":[{"ref":"A","is_set":true},{"ref":"B"}]}`},
		{"null-item", `{"capacity":0,"overwrite":false,"items":[null]}`},
		{"wrong-type", `{"capacity":"2","overwrite":false,"items":[]}`},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			b := New[*types.Alarm](5, true)
			b.Insert(types.NewAlarm("keep"), false)

			err := b.UnmarshalBinary([]byte(c.input))
			require.Error(t, err)
			assert.IsType(t, &DeserializationError{}, err)
			assert.True(t, IsDeserialization(errors.Annotate(err, "context")))
			assert.Equal(t, 5, b.Capacity())
			require.Equal(t, 1, b.Len())

			restored, err := Unmarshal[*types.Alarm]([]byte(c.input))
			assert.Error(t, err)
			assert.Nil(t, restored)
		})
	}
}

func TestReadingsCollection(t *testing.T) {
	t.Parallel()

	b := New[*types.Reading](0, false)
	b.InsertMany([]*types.Reading{reading(1, 10), reading(2, 20), reading(3, 10)}, false)
	coll := ReadingsCollection(b)
	require.Len(t, coll.Groups, 2)
	assert.Equal(t, int64(10), coll.Groups[0].Timestamp)
	assert.Equal(t, []float64{1, 3}, values(coll.Groups[0].Readings))
	assert.Equal(t, []float64{2}, values(coll.Groups[1].Readings))
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	mr, err := NewMetrics(reg, "readings")
	require.NoError(t, err)
	ma, err := NewMetrics(reg, "alarms")
	require.NoError(t, err)
	_, err = NewMetrics(reg, "readings")
	assert.Error(t, err)

	b := New(2, true, WithMetrics[*types.Reading](mr))
	b.InsertMany([]*types.Reading{reading(1, 1), reading(2, 2), reading(3, 3)}, false)
	assert.Equal(t, 3.0, testutil.ToFloat64(mr.inserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(mr.evicted))
	assert.Equal(t, 2.0, testutil.ToFloat64(mr.length))

	a := New(1, false, WithMetrics[*types.Alarm](ma))
	a.Insert(types.NewAlarm("A"), false)
	a.Insert(types.NewAlarm("B"), false)
	assert.Equal(t, 1.0, testutil.ToFloat64(ma.dropped))
	a.Clear()
	assert.Equal(t, 0.0, testutil.ToFloat64(ma.length))
}

func TestPersist(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	root := t.TempDir()

	b := New[*types.Reading](4, false)
	b.InsertMany([]*types.Reading{reading(1, 1), reading(2, 2)}, false)
	var p Persist
	require.NoError(t, p.Init("readings", b, root, true, log))
	assert.True(t, p.Enabled())
	require.NoError(t, p.Store())

	loaded := New[*types.Reading](0, true)
	var p2 Persist
	require.NoError(t, p2.Init("readings", loaded, root, true, log))
	require.NoError(t, p2.Load())
	assert.Equal(t, 4, loaded.Capacity())
	assert.False(t, loaded.Overwrite())
	assert.Equal(t, []float64{1, 2}, values(loaded.Snapshot()))

	fresh := New[*types.Alarm](0, false)
	var p3 Persist
	require.NoError(t, p3.Init("alarms", fresh, root, true, log))
	require.NoError(t, p3.Load())
	assert.Equal(t, 0, fresh.Len())

	var disabled Persist
	require.NoError(t, disabled.Init("off", nil, "", false, log))
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Load())
	assert.NoError(t, disabled.Store())

	var bad Persist
	assert.Error(t, bad.Init("x", b, "", true, log))
}

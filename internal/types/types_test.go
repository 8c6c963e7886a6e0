package types

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromReadings(t *testing.T) {
	t.Parallel()

	a := NewReading(Temperature, 100, Numeric(1))
	b := NewReading(Humidity, 200, Numeric(2))
	c := NewReading(Pressure, 100, Numeric(3))
	coll := FromReadings([]*Reading{a, b, c})

	require.Len(t, coll.Groups, 2)
	assert.Equal(t, int64(100), coll.Groups[0].Timestamp)
	assert.Equal(t, []*Reading{a, c}, coll.Groups[0].Readings)
	assert.Equal(t, int64(200), coll.Groups[1].Timestamp)
	assert.Equal(t, []*Reading{b}, coll.Groups[1].Readings)
	assert.Equal(t, 3, coll.Len())

	empty := FromReadings(nil)
	assert.Empty(t, empty.Groups)
}

func TestReadingClone(t *testing.T) {
	t.Parallel()

	r := NewReading(Accelerometer, 5, Numerics(0.1, 0.2, 0.3)...)
	c := r.Clone()
	r.Values[0] = Numeric(9)
	r.SetTimestamp(6)
	assert.Equal(t, Numeric(0.1), c.Values[0])
	assert.Equal(t, int64(5), c.Timestamp)

	a := NewAlarm("HH")
	ac := a.Clone()
	a.Set()
	assert.False(t, ac.IsSet)
}

func TestValueBoolean(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v      Value
		expect bool
		ok     bool
	}{
		{Bool(true), true, true},
		{Numeric(0), false, true},
		{Numeric(1), true, true},
		{Numeric(2), false, false},
		{String("TRUE"), true, true},
		{String("False"), false, true},
		{String("1"), true, true},
		{String("maybe"), false, false},
		{Value{}, false, false},
	}
	for _, c := range cases {
		b, ok := c.v.Boolean()
		assert.Equal(t, c.ok, ok, "value=%#v", c.v)
		assert.Equal(t, c.expect, b, "value=%#v", c.v)
	}
}

func TestValueJSON(t *testing.T) {
	t.Parallel()

	in := []Value{Numeric(23.5), String("on"), Bool(false), {}}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `[23.5,"on",false,null]`, string(b))

	var out []Value
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestActuatorStateMachine(t *testing.T) {
	t.Parallel()

	a := NewActuator("SW", DataBoolean, Bool(false))
	assert.Equal(t, ActuatorReady, a.State())
	require.NoError(t, a.SetValue(String("true")))
	assert.Equal(t, ActuatorReady, a.State())
	assert.Equal(t, "true", a.Value().String())

	broken := NewActuator("", DataNumeric, Value{})
	err := broken.SetValue(Numeric(1))
	require.Error(t, err)
	assert.IsType(t, &ActuationError{}, err)
	assert.Equal(t, ActuatorError, broken.State())
	assert.True(t, broken.Value().IsMissing())
}

func TestBuiltinReadingTypes(t *testing.T) {
	t.Parallel()

	for _, rt := range BuiltinReadingTypes() {
		require.NoError(t, rt.Validate(), rt.String())
		found, ok := LookupReadingType(rt.Ref)
		assert.True(t, ok)
		assert.Equal(t, rt, found)
	}
	assert.True(t, Temperature.IsScalar())
	assert.False(t, Gyroscope.IsScalar())
	_, ok := LookupReadingType("nope")
	assert.False(t, ok)

	rnd := rand.New(rand.NewSource(1))
	vs := Temperature.RandomValues(rnd)
	require.Len(t, vs, 1)
	f, err := vs[0].Float()
	require.NoError(t, err)
	assert.True(t, f >= -40 && f <= 80)
	assert.Len(t, Magnetometer.RandomValues(rnd), 3)
}

package atomic_clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApi(t *testing.T) {
	t.Parallel()

	var zero Clock
	assert.True(t, zero.IsZero())
	assert.True(t, zero.Time().IsZero())
	assert.Equal(t, time.Duration(0), zero.Age())

	c := Now()
	tim := time.Now()
	const delta = 100 * time.Millisecond

	assert.InDelta(t, tim.UnixNano(), c.UnixNano(), float64(delta))
	assert.InDelta(t, tim.Unix(), c.Unix(), 1)

	c.SetTime(tim)
	assert.Equal(t, tim.UnixNano(), c.UnixNano())
	assert.True(t, c.Time().Equal(time.Unix(0, tim.UnixNano())))

	c.SetNow()
	assert.True(t, Since(c) < delta)
	assert.True(t, c.Age() < delta)
}

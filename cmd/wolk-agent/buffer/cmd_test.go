package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolkabout/wolkconnect-go/internal/buffer"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

func TestDump(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	dir := t.TempDir()
	alarms := buffer.New[*types.Alarm](5, true)
	alarms.Insert(&types.Alarm{Ref: "HH", IsSet: true, Timestamp: 10}, false)
	var p buffer.Persist
	require.NoError(t, p.Init(kindAlarms, alarms, dir, true, log))
	require.NoError(t, p.Store())

	var out bytes.Buffer
	require.NoError(t, Dump(log, &out, dir, kindAlarms, true))
	assert.Equal(t, "alarms Buffer(len=1 capacity=5 overwrite=true)\n  Alarm(HH set=true utc=10)\n", out.String())

	out.Reset()
	require.NoError(t, Dump(log, &out, dir, kindAlarms, false))
	assert.Equal(t, "alarms Buffer(len=0 capacity=5 overwrite=true)\n", out.String())

	out.Reset()
	require.NoError(t, Dump(log, &out, dir, kindReadings, false))
	assert.Equal(t, "readings Buffer(len=0 capacity=0 overwrite=false)\n", out.String())

	assert.Error(t, Dump(log, &out, dir, "events", false))
}

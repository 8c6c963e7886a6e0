package console

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolkabout/wolkconnect-go/internal/codec"
	"github.com/wolkabout/wolkconnect-go/internal/manifest"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Sensors:   []types.ReadingType{types.Temperature},
		Actuators: []*types.Actuator{types.NewActuator("SW", types.DataBoolean, types.Bool(false))},
		Alarms:    []*types.Alarm{types.NewAlarm("HH")},
	}
}

func TestExecutor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := log2.NewWriter(&buf, log2.LDebug)
	log.SetFlags(0)
	c, err := codec.New(codec.KindText, "s1", log)
	require.NoError(t, err)
	exec := newExecutor(log, c, testManifest(), rand.New(rand.NewSource(1)))

	exec("config/s1 SET SW:true;STATUS SW;")
	assert.Contains(t, buf.String(), "command SET(SW, true)\n")
	assert.Contains(t, buf.String(), "command STATUS(SW)\n")

	buf.Reset()
	exec("encode")
	assert.Contains(t, buf.String(), "topic=sensors/s1 payload=RTC ")
	assert.Contains(t, buf.String(), "topic=config/s1 payload=READINGS R:")
	assert.Contains(t, buf.String(), "topic=sensors/s1 payload=STATUS SW:false:READY;\n")

	buf.Reset()
	exec("lonely")
	assert.Contains(t, buf.String(), "error: expected: TOPIC PAYLOAD")

	buf.Reset()
	exec("help")
	assert.Contains(t, buf.String(), "syntax:")
}

func TestCompleter(t *testing.T) {
	t.Parallel()

	c, err := codec.New(codec.KindJSON, "s1", nil)
	require.NoError(t, err)
	complete := newCompleter(c, testManifest())
	buf := prompt.NewBuffer()
	buf.InsertText("act", false, true)
	suggests := complete(*buf.Document())
	require.Len(t, suggests, 1)
	assert.Equal(t, "actuators/commands/s1/SW", suggests[0].Text)
}

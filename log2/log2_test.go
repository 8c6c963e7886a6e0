package log2

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fun  func(t testing.TB, l *Log) string
	}{
		{"caller/debug", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Debugf("codec fragment=%q", "BOGUS")
			return formatCallerShort(1) + "debug: codec fragment=\"BOGUS\"\n"
		}},
		{"caller/info", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Infof("published topic=%s", "readings/s1")
			return formatCallerShort(1) + "published topic=readings/s1\n"
		}},
		{"caller/error", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Errorf("problem")
			return formatCallerShort(1) + "error: problem\n"
		}},
		{"printf", func(t testing.TB, l *Log) string {
			l.SetFlags(0)
			l.Printf("[client] %s", "connect")
			return "[client] connect\n"
		}},
		{"error-func/error", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			exactError := fmt.Errorf("one particular issue")
			l.Error(exactError)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, exactError, e)
			}
			return "error: one particular issue\n"
		}},
		{"error-func/string", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			l.Errorf("trouble var=%.1f", 3.4)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, "trouble var=3.4", e.Error())
			}
			return "error: trouble var=3.4\n"
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name+"/logger=nil", func(t *testing.T) {
			c.fun(t, nil)
		})
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, LAll)
			expect := c.fun(t, l)
			assert.Equal(t, expect, buf.String())
		})
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(0)
	l.Debugf("hidden")
	l.Infof("shown")
	assert.Equal(t, "shown\n", buf.String())

	l.SetLevel(LDebug)
	assert.True(t, l.Enabled(LDebug))
	l.Debug("now")
	assert.Equal(t, "shown\ndebug: now\n", buf.String())

	var nilLog *Log
	assert.False(t, nilLog.Enabled(LError))
	assert.Nil(t, nilLog.Clone(LDebug))
}

func TestContext(t *testing.T) {
	t.Parallel()

	l := NewTest(t, LDebug)
	ctx := ContextWithLogger(context.Background(), l)
	assert.Equal(t, l, ContextValueLogger(ctx))
	assert.Panics(t, func() { ContextValueLogger(context.Background()) })
}

func TestClone(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LError)
	l.SetFlags(0)
	l.SetPrefix("tele ")
	var hooked int
	l.SetErrorFunc(func(error) { hooked++ })

	c := l.Clone(LDebug)
	require.NotNil(t, c)
	c.Debugf("x=%d", 1)
	c.Errorf("boom")
	assert.Equal(t, "tele debug: x=1\ntele error: boom\n", buf.String())
	assert.Equal(t, 1, hooked)
	assert.Equal(t, "debug", LDebug.String())
}

func callerShort(depth int) (file string, line int) {
	var ok bool
	_, file, line, ok = runtime.Caller(depth)
	if !ok {
		file = "???"
		line = 0
	}

	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = short

	return
}

func formatCallerShort(depth int) string {
	file, line := callerShort(depth + 1)
	return fmt.Sprintf("%s:%d: ", file, line-1)
}

package tele

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolkabout/wolkconnect-go/internal/codec"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const mockNetworkTimeout = 5 * time.Second

type transportMock struct {
	t              testing.TB
	opt            TransportOptions
	networkTimeout time.Duration
	outBuffer      int
	connected      uint32
	out            chan codec.Message
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, opt TransportOptions) error {
	self.opt = opt
	if self.networkTimeout == 0 {
		self.networkTimeout = mockNetworkTimeout
	}
	if self.outBuffer == 0 {
		self.outBuffer = 16
	}
	self.out = make(chan codec.Message, self.outBuffer)
	return nil
}

func (self *transportMock) Connected() bool { return atomic.LoadUint32(&self.connected) == 1 }

func (self *transportMock) Publish(topic string, payload []byte) error {
	if !self.Connected() {
		return ErrNotConnected
	}
	msg := codec.Message{Topic: topic, Payload: copyBytes(payload)}
	select {
	case self.out <- msg:
		self.t.Logf("mock delivered %s", msg.String())
		return nil
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout")
		return ErrNotConnected
	}
}

func (self *transportMock) Close() { atomic.StoreUint32(&self.connected, 0) }

// connect runs OnConnect synchronously, like broker session start.
func (self *transportMock) connect() {
	atomic.StoreUint32(&self.connected, 1)
	if self.opt.OnConnect != nil {
		self.opt.OnConnect()
	}
}

func (self *transportMock) online() { atomic.StoreUint32(&self.connected, 1) }

func (self *transportMock) deliver(topic string, payload string) {
	self.t.Logf("mock income topic=%s payload=%s", topic, payload)
	self.opt.OnMessage(topic, []byte(payload))
}

// expect waits for next published message.
func (self *transportMock) expect() codec.Message {
	self.t.Helper()
	select {
	case msg := <-self.out:
		return msg
	case <-time.After(self.networkTimeout):
		self.t.Fatalf("mock no message in %v", self.networkTimeout)
	}
	return codec.Message{}
}

func (self *transportMock) expectNone() {
	self.t.Helper()
	select {
	case msg := <-self.out:
		self.t.Errorf("mock unexpected %s", msg.String())
	default:
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

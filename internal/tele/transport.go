package tele

import (
	"context"

	"github.com/wolkabout/wolkconnect-go/internal/config"
	"github.com/wolkabout/wolkconnect-go/log2"
)

// Transporter contract:
// - Init fails only with invalid config, network errors are logged and retried in background
// - Publish delivers within network timeout or fails, never blocks longer
// - application may start without network available
// - OnConnect is called after every (re)connect, when subscriptions are in place
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, opt TransportOptions) error
	Connected() bool
	Publish(topic string, payload []byte) error
	Close()
}

type MessageCallback func(topic string, payload []byte)

type TransportOptions struct {
	Config   config.MQTT
	Username string
	Password string
	// inbound topics
	Subscribe   []string
	WillTopic   string
	WillPayload []byte
	OnMessage   MessageCallback
	OnConnect   func()
}

func TopicLastWill(serial string) string { return "lastwill/" + serial }
func LastWillPayload(serial string) []byte {
	return []byte("Last will of serial:" + serial)
}

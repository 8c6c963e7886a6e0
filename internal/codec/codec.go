// Package codec converts device entities into broker wire payloads
// and inbound broker payloads into actuator commands.
//
// Two interchangeable protocols are supported:
// - json: nested key/value documents, one topic per entity kind
// - text: positional delimited text protocol
//
// Codecs are stateless per call and safe for concurrent use.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

type Kind string

const (
	KindJSON Kind = "json"
	KindText Kind = "text"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindJSON, KindText:
		return k, nil
	case "":
		return KindJSON, nil
	}
	return "", errors.NotValidf("codec kind=%q", s)
}

// Message is one publish unit handed to transport.
type Message struct {
	Topic   string
	Payload []byte
}

func (m *Message) String() string {
	if m == nil {
		return "Message(nil)"
	}
	return fmt.Sprintf("Message(topic=%s payload=%s)", m.Topic, m.Payload)
}

type CommandName string

const (
	CommandSet    CommandName = "SET"
	CommandStatus CommandName = "STATUS"
)

func ParseCommandName(s string) (CommandName, bool) {
	switch c := CommandName(s); c {
	case CommandSet, CommandStatus:
		return c, true
	}
	return "", false
}

// Command is decoded inbound request for one actuator.
// Value is only meaningful for SET.
type Command struct {
	Name  CommandName `json:"command"`
	Ref   string      `json:"ref"`
	Value types.Value `json:"value"`
	Topic string      `json:"topic"`
}

func (c Command) String() string {
	if c.Name == CommandSet {
		return fmt.Sprintf("%s(%s, %s)", c.Name, c.Ref, c.Value.String())
	}
	return fmt.Sprintf("%s(%s)", c.Name, c.Ref)
}

// MarshalBinary allows command to be queued.
func (c Command) MarshalBinary() ([]byte, error) { return json.Marshal(c) }
func (c *Command) UnmarshalBinary(b []byte) error {
	var tmp Command
	if err := json.Unmarshal(b, &tmp); err != nil {
		return errors.Annotate(err, "command unmarshal")
	}
	if _, ok := ParseCommandName(string(tmp.Name)); !ok {
		return errors.NotValidf("command=%q", tmp.Name)
	}
	*c = tmp
	return nil
}

// Codec contract:
// - Encode* return nil message with nil error when entity has nothing to report
// - Encode* errors are encoding preconditions, fatal only to that call
// - Decode never fails as a whole, bad fragments are logged and skipped
type Codec interface {
	Kind() Kind
	EncodeReading(*types.Reading) (*Message, error)
	EncodeGroup(*types.ReadingGroup) (*Message, error)
	EncodeCollection(*types.ReadingGroupCollection) (*Message, error)
	EncodeAlarm(*types.Alarm) (*Message, error)
	EncodeActuator(*types.Actuator) (*Message, error)
	Decode(topic string, payload []byte) []Command
	SubscriptionTopics(actuatorRefs []string) []string
}

type Option func(*base)

// WithClock replaces wall clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

func New(kind Kind, serial string, log *log2.Log, opts ...Option) (Codec, error) {
	if serial == "" {
		return nil, errors.NotValidf("codec serial empty")
	}
	switch kind {
	case KindJSON:
		return NewJSON(serial, log, opts...), nil
	case KindText:
		return NewText(serial, log, opts...), nil
	}
	return nil, errors.NotValidf("codec kind=%q", kind)
}

type topics struct {
	readings         string
	events           string
	actuatorsPublish string
	actuatorsCommand string
}

type base struct {
	serial string
	log    *log2.Log
	now    func() time.Time
	topics topics
}

func newBase(serial string, log *log2.Log, t topics, opts []Option) base {
	b := base{serial: serial, log: log, now: time.Now, topics: t}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

func (b *base) unixNow() int64 { return b.now().Unix() }

func checkActuator(s types.ActuatorSnapshot) error {
	if s.Ref == "" {
		return types.NewActuationError("", "actuator reference missing")
	}
	if s.Value.IsMissing() {
		return types.NewActuationError(s.Ref, "actuation value missing")
	}
	return nil
}

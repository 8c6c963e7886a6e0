package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const keyUTC = "utc"

type jsonCodec struct{ base }

// NewJSON creates structured codec:
// readings/{serial}, events/{serial}, actuators/status/{serial}/{ref}, actuators/commands/{serial}/{ref}
func NewJSON(serial string, log *log2.Log, opts ...Option) Codec {
	t := topics{
		readings:         "readings/" + serial,
		events:           "events/" + serial,
		actuatorsPublish: "actuators/status/" + serial,
		actuatorsCommand: "actuators/commands/" + serial,
	}
	return &jsonCodec{newBase(serial, log, t, opts)}
}

func (self *jsonCodec) Kind() Kind { return KindJSON }

// RoundOneDecimal rounds half away from zero.
func RoundOneDecimal(f float64) float64 { return math.Round(f*10) / 10 }

// object keeps key order as inserted.
type object []field

type field struct {
	key   string
	value interface{}
}

func (o *object) set(key string, value interface{}) { *o = append(*o, field{key, value}) }

// put replaces value of existing key in place, appends otherwise.
func (o *object) put(key string, value interface{}) {
	for i := range *o {
		if (*o)[i].key == key {
			(*o)[i].value = value
			return
		}
	}
	o.set(key, value)
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(f.value)
		if err != nil {
			return nil, errors.Annotatef(err, "key=%s", f.key)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func roundValue(v types.Value) types.Value {
	if v.Kind() == types.DataNumeric {
		f, _ := v.Float()
		return types.Numeric(RoundOneDecimal(f))
	}
	return v
}

// readingData is bare scalar iff reading type arity is 1, array otherwise.
func readingData(r *types.Reading) interface{} {
	if r.Type.IsScalar() {
		return roundValue(r.Values[0])
	}
	vs := make([]types.Value, len(r.Values))
	for i, v := range r.Values {
		vs[i] = roundValue(v)
	}
	return vs
}

func (self *jsonCodec) marshal(topic string, doc interface{}) (*Message, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Annotatef(err, "json encode topic=%s", topic)
	}
	return &Message{Topic: topic, Payload: b}, nil
}

func (self *jsonCodec) EncodeReading(r *types.Reading) (*Message, error) {
	if r == nil || len(r.Values) == 0 {
		return nil, nil
	}
	doc := object{}
	if r.Timestamp != 0 {
		doc.set(keyUTC, r.Timestamp)
	}
	doc.set("data", readingData(r))
	return self.marshal(self.topics.readings, doc)
}

// groupObject keys readings by reference. Repeated reference keeps its first
// position and the value of the last reading.
func groupObject(g *types.ReadingGroup) (object, bool) {
	doc := object{}
	if g.Timestamp != 0 {
		doc.set(keyUTC, g.Timestamp)
	}
	n := 0
	for _, r := range g.Readings {
		if r == nil || len(r.Values) == 0 {
			continue
		}
		doc.put(r.Type.Ref, readingData(r))
		n++
	}
	return doc, n != 0
}

func (self *jsonCodec) EncodeGroup(g *types.ReadingGroup) (*Message, error) {
	if g == nil {
		return nil, nil
	}
	doc, ok := groupObject(g)
	if !ok {
		return nil, nil
	}
	return self.marshal(self.topics.readings, doc)
}

func (self *jsonCodec) EncodeCollection(c *types.ReadingGroupCollection) (*Message, error) {
	if c == nil {
		return nil, nil
	}
	docs := make([]object, 0, len(c.Groups))
	for i := range c.Groups {
		if doc, ok := groupObject(&c.Groups[i]); ok {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return self.marshal(self.topics.readings, docs)
}

func (self *jsonCodec) EncodeAlarm(a *types.Alarm) (*Message, error) {
	if a == nil {
		return nil, nil
	}
	if a.Ref == "" {
		return nil, errors.NotValidf("alarm reference missing")
	}
	doc := object{}
	if a.Timestamp != 0 {
		doc.set(keyUTC, a.Timestamp)
	}
	doc.set(a.Ref, a.IsSet)
	return self.marshal(self.topics.events, doc)
}

func (self *jsonCodec) EncodeActuator(a *types.Actuator) (*Message, error) {
	if a == nil {
		return nil, nil
	}
	s := a.Snapshot()
	if err := checkActuator(s); err != nil {
		return nil, err
	}
	doc := object{}
	doc.set("status", s.State)
	doc.set("value", s.Value)
	return self.marshal(self.topics.actuatorsPublish+"/"+s.Ref, doc)
}

func (self *jsonCodec) SubscriptionTopics(actuatorRefs []string) []string {
	ts := make([]string, 0, len(actuatorRefs))
	for _, ref := range actuatorRefs {
		ts = append(ts, self.topics.actuatorsCommand+"/"+ref)
	}
	return ts
}

// Decode accepts one document or array of documents.
// Target reference is last path segment of topic.
func (self *jsonCodec) Decode(topic string, payload []byte) []Command {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil
	}
	ref := topic
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		ref = topic[i+1:]
	}
	if ref == "" {
		self.log.Errorf("codec json: no reference in topic=%s", topic)
		return nil
	}

	var docs []json.RawMessage
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &docs); err != nil {
			self.log.Errorf("codec json: decode topic=%s payload=%s err=%v", topic, payload, err)
			return nil
		}
	} else {
		docs = []json.RawMessage{payload}
	}

	cmds := make([]Command, 0, len(docs))
	for _, raw := range docs {
		if c, ok := self.decodeOne(topic, ref, raw); ok {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

func (self *jsonCodec) decodeOne(topic, ref string, raw json.RawMessage) (Command, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		self.log.Errorf("codec json: skip document=%s err=%v", raw, err)
		return Command{}, false
	}
	rawCommand, ok := doc["command"]
	if !ok {
		self.log.Errorf("codec json: skip document=%s no command", raw)
		return Command{}, false
	}
	var word string
	if err := json.Unmarshal(rawCommand, &word); err != nil {
		self.log.Errorf("codec json: skip document=%s command not string", raw)
		return Command{}, false
	}
	name, ok := ParseCommandName(word)
	if !ok {
		self.log.Errorf("codec json: command=%s not recognized", word)
		return Command{}, false
	}
	c := Command{Name: name, Ref: ref, Topic: topic}
	if name == CommandSet {
		rawValue, ok := doc["value"]
		if !ok {
			self.log.Errorf("codec json: skip SET document=%s no value", raw)
			return Command{}, false
		}
		if err := json.Unmarshal(rawValue, &c.Value); err != nil || c.Value.IsMissing() {
			self.log.Errorf("codec json: skip SET document=%s value invalid err=%v", raw, err)
			return Command{}, false
		}
	}
	return c, true
}

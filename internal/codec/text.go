package codec

import (
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

// Text protocol grammar, all literals exact.
const (
	textValueSeparator    = ":"
	textReadingSeparator  = ","
	textGroupSeparator    = "|"
	textCommandTerminator = ";"
)

type textCodec struct{ base }

// NewText creates delimited text codec:
// sensors/{serial} for readings and actuator status, config/{serial} for alarms and commands.
func NewText(serial string, log *log2.Log, opts ...Option) Codec {
	t := topics{
		readings:         "sensors/" + serial,
		events:           "config/" + serial,
		actuatorsPublish: "sensors/" + serial,
		actuatorsCommand: "config/" + serial,
	}
	return &textCodec{newBase(serial, log, t, opts)}
}

func (self *textCodec) Kind() Kind { return KindText }

// FormatScaled renders value*scale truncated to integer with explicit sign.
// Values with magnitude below 10 get three zero padded digits: 7 -> +007, 7.2*10 -> +072.
// Results outside int64 saturate, NaN renders as zero.
func FormatScaled(value, scale float64) string {
	scaled := clampInt64(value * scale)
	sign, abs := "+", uint64(scaled)
	if scaled < 0 {
		sign = "-"
		abs = uint64(-(scaled + 1)) + 1
	}
	digits := strconv.FormatUint(abs, 10)
	if math.Abs(value) < 10 && len(digits) < 3 {
		digits = strings.Repeat("0", 3-len(digits)) + digits
	}
	return sign + digits
}

func clampInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// checkScaled rejects values that FormatScaled can not render exactly.
func checkScaled(value, scale float64) error {
	scaled := value * scale
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || scaled >= math.MaxInt64 || scaled <= math.MinInt64 {
		return errors.NotValidf("value=%v scale=%v out of range", value, scale)
	}
	return nil
}

func (self *textCodec) readingPayload(r *types.Reading) (string, error) {
	var sb strings.Builder
	sb.WriteString(r.Type.Ref)
	sb.WriteString(textValueSeparator)
	switch r.Type.DataType {
	case types.DataString:
		for _, v := range r.Values {
			sb.WriteString(v.String())
		}
	case types.DataBoolean:
		for _, v := range r.Values {
			b, ok := v.Boolean()
			if !ok {
				return "", errors.NotValidf("reading ref=%s value=%q not boolean", r.Type.Ref, v.String())
			}
			sb.WriteString(strconv.FormatBool(b))
		}
	default:
		scale := r.Type.ScaleOrOne()
		for _, v := range r.Values {
			f, err := v.Float()
			if err != nil {
				return "", errors.NewNotValid(err, "reading ref="+r.Type.Ref)
			}
			if err = checkScaled(f, scale); err != nil {
				return "", errors.Annotatef(err, "reading ref=%s", r.Type.Ref)
			}
			sb.WriteString(FormatScaled(f, scale))
		}
	}
	return sb.String(), nil
}

func (self *textCodec) EncodeReading(r *types.Reading) (*Message, error) {
	if r == nil || len(r.Values) == 0 {
		return nil, nil
	}
	payload, err := self.readingPayload(r)
	if err != nil {
		return nil, err
	}
	return &Message{Topic: self.topics.readings, Payload: []byte(payload)}, nil
}

// groupBody is "R:{ts},{reading1},{reading2}" without terminator.
// Readings that can not be encoded are logged and left out.
func (self *textCodec) groupBody(g *types.ReadingGroup) (string, bool) {
	parts := make([]string, 0, len(g.Readings))
	for _, r := range g.Readings {
		if r == nil || len(r.Values) == 0 {
			continue
		}
		p, err := self.readingPayload(r)
		if err != nil {
			self.log.Errorf("codec text: group ts=%d skip err=%v", g.Timestamp, err)
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "", false
	}
	ts := g.Timestamp
	if ts == 0 {
		ts = self.unixNow()
	}
	return "R:" + strconv.FormatInt(ts, 10) + textReadingSeparator + strings.Join(parts, textReadingSeparator), true
}

func (self *textCodec) EncodeGroup(g *types.ReadingGroup) (*Message, error) {
	if g == nil {
		return nil, nil
	}
	body, ok := self.groupBody(g)
	if !ok {
		return nil, nil
	}
	return &Message{Topic: self.topics.readings, Payload: []byte(body + textCommandTerminator)}, nil
}

// EncodeCollection makes "RTC {now};READINGS {group1}|{group2};"
func (self *textCodec) EncodeCollection(c *types.ReadingGroupCollection) (*Message, error) {
	if c == nil {
		return nil, nil
	}
	bodies := make([]string, 0, len(c.Groups))
	for i := range c.Groups {
		if body, ok := self.groupBody(&c.Groups[i]); ok {
			bodies = append(bodies, body)
		}
	}
	if len(bodies) == 0 {
		return nil, nil
	}
	payload := "RTC " + strconv.FormatInt(self.unixNow(), 10) + textCommandTerminator +
		"READINGS " + strings.Join(bodies, textGroupSeparator) + textCommandTerminator
	return &Message{Topic: self.topics.readings, Payload: []byte(payload)}, nil
}

// EncodeAlarm makes "READINGS R:{ts},{ref}:{0|1};"
func (self *textCodec) EncodeAlarm(a *types.Alarm) (*Message, error) {
	if a == nil {
		return nil, nil
	}
	if a.Ref == "" {
		return nil, errors.NotValidf("alarm reference missing")
	}
	ts := a.Timestamp
	if ts == 0 {
		ts = self.unixNow()
	}
	flag := "0"
	if a.IsSet {
		flag = "1"
	}
	payload := "READINGS R:" + strconv.FormatInt(ts, 10) + textReadingSeparator +
		a.Ref + textValueSeparator + flag + textCommandTerminator
	return &Message{Topic: self.topics.events, Payload: []byte(payload)}, nil
}

// EncodeActuator makes "STATUS {ref}:{value}:{state};"
func (self *textCodec) EncodeActuator(a *types.Actuator) (*Message, error) {
	if a == nil {
		return nil, nil
	}
	s := a.Snapshot()
	if err := checkActuator(s); err != nil {
		return nil, err
	}
	value, err := actuatorValueString(s)
	if err != nil {
		return nil, err
	}
	payload := "STATUS " + s.Ref + textValueSeparator + value + textValueSeparator + string(s.State) + textCommandTerminator
	return &Message{Topic: self.topics.actuatorsPublish, Payload: []byte(payload)}, nil
}

func actuatorValueString(s types.ActuatorSnapshot) (string, error) {
	switch s.DataType {
	case types.DataBoolean:
		b, ok := s.Value.Boolean()
		if !ok {
			return "", types.NewActuationError(s.Ref, "value=%q is not boolean", s.Value.String())
		}
		return strconv.FormatBool(b), nil
	case types.DataNumeric:
		f, err := s.Value.Float()
		if err != nil {
			return "", types.NewActuationError(s.Ref, "value=%q is not numeric", s.Value.String())
		}
		if err = checkScaled(f, s.ScaleOrOne()); err != nil {
			return "", types.NewActuationError(s.Ref, "value=%v out of range", f)
		}
		return FormatScaled(f, s.ScaleOrOne()), nil
	}
	return s.Value.String(), nil
}

func (self *textCodec) SubscriptionTopics([]string) []string {
	return []string{self.topics.actuatorsCommand}
}

// Decode splits payload into ";" terminated fragments and parses each:
// "SET {ref}:{value}" or "STATUS {ref}".
func (self *textCodec) Decode(topic string, payload []byte) []Command {
	fragments := strings.Split(string(payload), textCommandTerminator)
	cmds := make([]Command, 0, len(fragments))
	for _, fragment := range fragments {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		if c, ok := self.parseFragment(topic, fragment); ok {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

func (self *textCodec) parseFragment(topic, fragment string) (Command, bool) {
	word, rest := fragment, ""
	if i := strings.IndexByte(fragment, ' '); i >= 0 {
		word, rest = fragment[:i], strings.TrimSpace(fragment[i+1:])
	}
	name, ok := ParseCommandName(word)
	if !ok {
		self.log.Errorf("codec text: command=%q not recognized fragment=%q", word, fragment)
		return Command{}, false
	}

	switch name {
	case CommandSet:
		tokens := strings.Split(rest, textValueSeparator)
		if len(tokens) < 2 || tokens[0] == "" {
			self.log.Errorf("codec text: invalid fragment=%q expected {ref}:{value}", fragment)
			return Command{}, false
		}
		return Command{Name: name, Ref: tokens[0], Value: types.String(tokens[1]), Topic: topic}, true

	case CommandStatus:
		tokens := strings.Fields(fragment)
		if len(tokens) < 2 {
			self.log.Errorf("codec text: invalid fragment=%q expected STATUS {ref}", fragment)
			return Command{}, false
		}
		return Command{Name: name, Ref: tokens[1], Topic: topic}, true
	}
	return Command{}, false
}

package tele

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/spq"
	"github.com/wolkabout/wolkconnect-go/helpers"
	"github.com/wolkabout/wolkconnect-go/internal/codec"
	"github.com/wolkabout/wolkconnect-go/internal/types"
)

const (
	queueRetryMin = 100 * time.Millisecond
	queueRetryMax = 10 * time.Second
)

// onMessage runs in transport goroutine, only queues decoded commands.
func (self *Tele) onMessage(topic string, payload []byte) {
	cmds := self.codec.Decode(topic, payload)
	if len(cmds) == 0 {
		self.log.Debugf("tele message topic=%s no commands", topic)
		return
	}
	for _, c := range cmds {
		if err := self.q.MarshalPush(c); err != nil {
			self.log.Errorf("tele queue push command=%s err=%v", c.String(), err)
		}
	}
}

func (self *Tele) qworker() {
	defer self.alive.Done()
	retry := helpers.Backoff{Min: queueRetryMin, Max: queueRetryMax, K: 2}
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			retry.Reset()
			var c codec.Command
			if err = box.Unmarshal(&c); err != nil {
				self.log.Errorf("tele queue discard b=%x err=%v", box.Bytes(), err)
			} else {
				self.execute(c)
			}
			if err = self.q.Delete(box); err != nil {
				self.log.Errorf("tele queue Delete err=%v", err)
			}

		case spq.ErrClosed:
			select {
			case <-self.alive.StopChan(): // success path
			default:
				self.log.Errorf("CRITICAL tele queue closed unexpectedly")
			}
			return

		default:
			// here go yet unhandled errors like disk full
			delay := retry.DelayAfter(false)
			self.log.Errorf("CRITICAL tele queue err=%v retry in %v", err, delay)
			select {
			case <-self.alive.StopChan():
				return
			case <-time.After(delay):
			}
		}
	}
}

// execute applies SET then reports actual status, STATUS only reports.
func (self *Tele) execute(c codec.Command) {
	self.stat.LastCommand.SetNow()
	self.stat.Commands.WithLabelValues(string(c.Name)).Inc()
	a := self.manifest.Actuator(c.Ref)
	if a == nil {
		self.log.Errorf("tele command=%s unknown actuator", c.String())
		return
	}
	self.log.Debugf("tele command=%s", c.String())
	if c.Name == codec.CommandSet {
		if err := setActuator(a, c.Value); err != nil {
			self.log.Error(errors.Annotatef(err, "tele command=%s", c.String()))
		}
	}
	if err := self.publishActuator(a); err != nil {
		self.log.Errorf("tele publish actuator=%s err=%v", a.Ref, err)
	}
}

// setActuator converts command value to actuator data type.
func setActuator(a *types.Actuator, v types.Value) error {
	switch a.DataType {
	case types.DataBoolean:
		b, ok := v.Boolean()
		if !ok {
			return types.NewActuationError(a.Ref, "value=%q is not boolean", v.String())
		}
		v = types.Bool(b)
	case types.DataNumeric:
		f, err := v.Float()
		if err != nil {
			return types.NewActuationError(a.Ref, "value=%q is not numeric", v.String())
		}
		v = types.Numeric(f)
	default:
		v = types.String(v.String())
	}
	return a.SetValue(v)
}

// Package tele is the device agent: publishes readings, alarms and actuator
// status through configured codec, buffers what could not be delivered and
// executes inbound actuator commands.
package tele

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
	"github.com/wolkabout/wolkconnect-go/internal/buffer"
	"github.com/wolkabout/wolkconnect-go/internal/codec"
	"github.com/wolkabout/wolkconnect-go/internal/config"
	"github.com/wolkabout/wolkconnect-go/internal/manifest"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

var ErrNotConnected = errors.New("not connected")

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - Publish* never block longer than network timeout
// - readings and alarms not delivered are buffered, buffers are flushed
//   on (re)connect and after next successful publish
// - actuator status is not buffered, it is republished on connect
// - inbound commands are queued, then executed one by one in background
type Tele struct { //nolint:maligned
	config    *config.Config
	log       *log2.Log
	codec     codec.Codec
	manifest  *manifest.Manifest
	transport Transporter
	q         *spq.Queue
	alive     *alive.Alive
	stat      *Stat
	now       func() time.Time

	mu              sync.Mutex // guards buffers and manifest alarms state
	readings        *buffer.Buffer[*types.Reading]
	alarms          *buffer.Buffer[*types.Alarm]
	persistReadings buffer.Persist
	persistAlarms   buffer.Persist
}

func New() *Tele {
	return &Tele{now: time.Now}
}
func NewWithTransporter(trans Transporter) *Tele {
	return &Tele{transport: trans, now: time.Now}
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, cfg *config.Config, m *manifest.Manifest, reg prometheus.Registerer) error {
	self.config = cfg
	self.log = log
	if cfg.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "tele config")
	}
	if m == nil {
		m = manifest.Default()
	}
	self.manifest = m
	if self.now == nil {
		self.now = time.Now
	}

	var err error
	if self.codec, err = codec.New(cfg.CodecKind(), cfg.Serial, log); err != nil {
		return errors.Annotate(err, "tele codec")
	}
	if self.stat, err = newStat(reg); err != nil {
		return err
	}
	self.log.SetErrorFunc(func(error) { self.stat.Errors.Inc() })

	if err = self.initBuffers(reg); err != nil {
		return err
	}

	queuePath := cfg.Tele.QueuePath
	if queuePath == "" {
		queuePath = spq.OnlyForTesting
	}
	if self.q, err = spq.Open(queuePath); err != nil {
		return errors.Annotate(err, "tele queue")
	}
	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.qworker()

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	opt := TransportOptions{
		Config:      cfg.MQTT,
		Username:    cfg.Serial,
		Password:    cfg.Password,
		Subscribe:   self.codec.SubscriptionTopics(m.ActuatorRefs()),
		WillTopic:   TopicLastWill(cfg.Serial),
		WillPayload: LastWillPayload(cfg.Serial),
		OnMessage:   self.onMessage,
		OnConnect:   self.onConnect,
	}
	if err = self.transport.Init(ctx, log, opt); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	self.log.Infof("tele init serial=%s codec=%s %s", cfg.Serial, self.codec.Kind(), m.String())
	return nil
}

func (self *Tele) initBuffers(reg prometheus.Registerer) error {
	bc := &self.config.Buffer
	rm, err := buffer.NewMetrics(reg, "readings")
	if err != nil {
		return err
	}
	am, err := buffer.NewMetrics(reg, "alarms")
	if err != nil {
		return err
	}
	self.readings = buffer.New(bc.ReadingsCapacity, bc.Overwrite,
		buffer.WithMetrics[*types.Reading](rm), buffer.WithLog[*types.Reading](self.log))
	self.alarms = buffer.New(bc.AlarmsCapacity, bc.Overwrite,
		buffer.WithMetrics[*types.Alarm](am), buffer.WithLog[*types.Alarm](self.log))

	enabled := bc.PersistRoot != ""
	if err = self.persistReadings.Init("readings", self.readings, bc.PersistRoot, enabled, self.log); err != nil {
		return err
	}
	if err = self.persistAlarms.Init("alarms", self.alarms, bc.PersistRoot, enabled, self.log); err != nil {
		return err
	}
	if err = self.loadBuffer(&self.persistReadings); err != nil {
		return err
	}
	if err = self.loadBuffer(&self.persistAlarms); err != nil {
		return err
	}
	// configuration wins over persisted capacity
	self.readings.Reconfigure(bc.ReadingsCapacity, bc.Overwrite)
	self.alarms.Reconfigure(bc.AlarmsCapacity, bc.Overwrite)
	self.log.Debugf("tele buffered readings=%d alarms=%d", self.readings.Len(), self.alarms.Len())
	return nil
}

func (self *Tele) loadBuffer(p *buffer.Persist) error {
	err := p.Load()
	if buffer.IsDeserialization(err) {
		self.log.Errorf("tele discard persisted buffer err=%v", err)
		return nil
	}
	return err
}

// Close stops command worker, persists buffers and disconnects.
func (self *Tele) Close() {
	if self.alive == nil {
		return
	}
	self.alive.Stop()
	if err := self.q.Close(); err != nil {
		self.log.Errorf("tele queue close err=%v", err)
	}
	self.alive.Wait()

	self.mu.Lock()
	self.store(&self.persistReadings)
	self.store(&self.persistAlarms)
	self.mu.Unlock()

	self.transport.Close()
}

func (self *Tele) Codec() codec.Codec          { return self.codec }
func (self *Tele) Manifest() *manifest.Manifest { return self.manifest }
func (self *Tele) Stat() *Stat                  { return self.stat }
func (self *Tele) Connected() bool              { return self.transport.Connected() }

func (self *Tele) Actuator(ref string) *types.Actuator { return self.manifest.Actuator(ref) }

// Alarm returns current state copy, nil for unknown reference.
func (self *Tele) Alarm(ref string) *types.Alarm {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.manifest.Alarm(ref).Clone()
}

// SetAlarm changes alarm state and publishes it (or buffers when offline).
func (self *Tele) SetAlarm(ref string, set bool) error {
	self.mu.Lock()
	a := self.manifest.Alarm(ref)
	if a == nil {
		self.mu.Unlock()
		return errors.NotFoundf("alarm ref=%s", ref)
	}
	if set {
		a.Set()
	} else {
		a.Reset()
	}
	a.SetTimestamp(self.now().Unix())
	c := a.Clone()
	self.mu.Unlock()
	return self.PublishAlarm(c)
}

func (self *Tele) Buffered() (readings, alarms int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.readings.Len(), self.alarms.Len()
}

// PublishReadings sends readings grouped by timestamp, zero timestamp means now.
// Caller keeps ownership of readings.
func (self *Tele) PublishReadings(readings ...*types.Reading) error {
	now := self.now().Unix()
	rs := make([]*types.Reading, 0, len(readings))
	for _, r := range readings {
		if r == nil || len(r.Values) == 0 {
			continue
		}
		c := r.Clone()
		if c.Timestamp == 0 {
			c.SetTimestamp(now)
		}
		rs = append(rs, c)
	}
	if len(rs) == 0 {
		return nil
	}
	coll := types.FromReadings(rs)
	msg, err := self.codec.EncodeCollection(&coll)
	if err != nil {
		return errors.Annotate(err, "tele encode readings")
	}
	if err = self.publish(msg, kindReadings); err != nil {
		self.log.Debugf("tele buffer readings=%d err=%v", len(rs), err)
		self.mu.Lock()
		defer self.mu.Unlock()
		self.readings.InsertMany(rs, false)
		self.stat.Buffered.WithLabelValues(kindReadings).Add(float64(len(rs)))
		self.store(&self.persistReadings)
		return nil
	}
	self.flushLog()
	return nil
}

// PublishSensors sends random values for every manifest sensor.
func (self *Tele) PublishSensors(rnd *rand.Rand) error {
	now := self.now().Unix()
	rs := make([]*types.Reading, 0, len(self.manifest.Sensors))
	for _, rt := range self.manifest.Sensors {
		rs = append(rs, types.NewReading(rt, now, rt.RandomValues(rnd)...))
	}
	return self.PublishReadings(rs...)
}

func (self *Tele) PublishAlarm(a *types.Alarm) error {
	if a == nil {
		return nil
	}
	c := a.Clone()
	if c.Timestamp == 0 {
		c.SetTimestamp(self.now().Unix())
	}
	msg, err := self.codec.EncodeAlarm(c)
	if err != nil {
		return errors.Annotate(err, "tele encode alarm")
	}
	if err = self.publish(msg, kindAlarm); err != nil {
		self.log.Debugf("tele buffer alarm=%s err=%v", c.String(), err)
		self.mu.Lock()
		defer self.mu.Unlock()
		self.alarms.Insert(c, false)
		self.stat.Buffered.WithLabelValues(kindAlarm).Inc()
		self.store(&self.persistAlarms)
		return nil
	}
	self.flushLog()
	return nil
}

// PublishActuator sends current actuator status, never buffered.
func (self *Tele) PublishActuator(ref string) error {
	a := self.manifest.Actuator(ref)
	if a == nil {
		return errors.NotFoundf("actuator ref=%s", ref)
	}
	return self.publishActuator(a)
}

func (self *Tele) publishActuator(a *types.Actuator) error {
	msg, err := self.codec.EncodeActuator(a)
	if err != nil {
		return errors.Annotate(err, "tele encode actuator")
	}
	return self.publish(msg, kindActuator)
}

// Flush sends buffered readings as one collection, then buffered alarms one by one.
// Delivered entities are removed from buffers.
func (self *Tele) Flush() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.readings.Len() != 0 {
		coll := buffer.ReadingsCollection(self.readings)
		msg, err := self.codec.EncodeCollection(&coll)
		if err != nil {
			self.log.Errorf("tele flush discard readings=%d encode err=%v", self.readings.Len(), err)
		} else if err = self.publish(msg, kindReadings); err != nil {
			return errors.Annotate(err, "tele flush readings")
		}
		self.log.Debugf("tele flushed readings=%d", self.readings.Len())
		self.readings.Clear()
		self.store(&self.persistReadings)
	}

	if self.alarms.Len() != 0 {
		pending := self.alarms.Snapshot()
		sent := 0
		var err error
		for _, a := range pending {
			var msg *codec.Message
			if msg, err = self.codec.EncodeAlarm(a); err != nil {
				self.log.Errorf("tele flush discard alarm=%s encode err=%v", a.String(), err)
				err = nil
			} else if err = self.publish(msg, kindAlarm); err != nil {
				break
			}
			sent++
		}
		self.alarms.Clear()
		self.alarms.InsertMany(pending[sent:], false)
		self.store(&self.persistAlarms)
		if err != nil {
			return errors.Annotate(err, "tele flush alarms")
		}
	}
	return nil
}

func (self *Tele) flushLog() {
	if err := self.Flush(); err != nil {
		self.log.Error(err)
	}
}

// RunSensors publishes PublishSensors every interval until ctx is done or Close.
func (self *Tele) RunSensors(ctx context.Context, interval time.Duration, rnd *rand.Rand) {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()
	tmr := time.NewTicker(interval)
	defer tmr.Stop()
	for {
		if err := self.PublishSensors(rnd); err != nil {
			self.log.Error(errors.Annotate(err, "tele publish sensors"))
		}
		select {
		case <-tmr.C:
		case <-ctx.Done():
			return
		case <-self.alive.StopChan():
			return
		}
	}
}

func (self *Tele) publish(msg *codec.Message, kind string) error {
	if msg == nil {
		return nil
	}
	if !self.transport.Connected() {
		self.stat.PublishFailed.Inc()
		return ErrNotConnected
	}
	if err := self.transport.Publish(msg.Topic, msg.Payload); err != nil {
		self.stat.PublishFailed.Inc()
		return err
	}
	self.stat.Published.WithLabelValues(kind).Inc()
	self.stat.LastPublish.SetNow()
	self.log.Debugf("tele published kind=%s %s", kind, msg.String())
	return nil
}

// store requires self.mu locked.
func (self *Tele) store(p *buffer.Persist) {
	if err := p.Store(); err != nil {
		self.log.Error(errors.Annotate(err, "tele buffer store"))
	}
}

func (self *Tele) onConnect() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()

	self.flushLog()
	for _, a := range self.manifest.Actuators {
		if err := self.publishActuator(a); err != nil {
			self.log.Errorf("tele publish actuator=%s err=%v", a.Ref, err)
		}
	}
}

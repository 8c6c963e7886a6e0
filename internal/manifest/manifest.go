// Package manifest describes which sensors, actuators and alarms a device has.
//
// Example:
//
//	sensors:
//	  - ref: T            # builtin reading type
//	  - ref: FLOW
//	    data_type: numeric
//	    arity: 2
//	    scale: 10
//	    min: 0
//	    max: 50
//	actuators:
//	  - ref: SW
//	    data_type: boolean
//	    value: false
//	alarms:
//	  - ref: HH
package manifest

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Sensors   []types.ReadingType
	Actuators []*types.Actuator
	// Alarms keep current state per reference.
	Alarms []*types.Alarm
}

type document struct {
	Sensors   []sensorDoc   `yaml:"sensors"`
	Actuators []actuatorDoc `yaml:"actuators"`
	Alarms    []struct {
		Ref string `yaml:"ref"`
	} `yaml:"alarms"`
}

type sensorDoc struct {
	Ref       string   `yaml:"ref"`
	DataType  string   `yaml:"data_type"`
	Arity     int      `yaml:"arity"`
	Delimiter string   `yaml:"delimiter"`
	Scale     float64  `yaml:"scale"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
}

type actuatorDoc struct {
	Ref      string    `yaml:"ref"`
	DataType string    `yaml:"data_type"`
	Scale    float64   `yaml:"scale"`
	Value    yaml.Node `yaml:"value"`
}

// Default lists every builtin reading type, no actuators or alarms.
func Default() *Manifest {
	return &Manifest{Sensors: types.BuiltinReadingTypes()}
}

func Parse(log *log2.Log, b []byte) (*Manifest, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Annotate(err, "manifest yaml")
	}

	m := &Manifest{}
	seen := make(map[string]struct{})
	unique := func(kind, ref string) error {
		if ref == "" {
			return errors.NotValidf("manifest %s ref empty", kind)
		}
		key := kind + "/" + ref
		if _, ok := seen[key]; ok {
			return errors.NotValidf("manifest %s ref=%s duplicate", kind, ref)
		}
		seen[key] = struct{}{}
		return nil
	}

	for _, s := range doc.Sensors {
		if err := unique("sensor", s.Ref); err != nil {
			return nil, err
		}
		rt, err := s.readingType()
		if err != nil {
			return nil, err
		}
		m.Sensors = append(m.Sensors, rt)
	}
	for _, a := range doc.Actuators {
		if err := unique("actuator", a.Ref); err != nil {
			return nil, err
		}
		act, err := a.actuator()
		if err != nil {
			return nil, err
		}
		m.Actuators = append(m.Actuators, act)
	}
	for _, a := range doc.Alarms {
		if err := unique("alarm", a.Ref); err != nil {
			return nil, err
		}
		m.Alarms = append(m.Alarms, types.NewAlarm(a.Ref))
	}
	log.Debugf("manifest sensors=%d actuators=%d alarms=%d", len(m.Sensors), len(m.Actuators), len(m.Alarms))
	return m, nil
}

func (s sensorDoc) readingType() (types.ReadingType, error) {
	if s.DataType == "" {
		if rt, ok := types.LookupReadingType(s.Ref); ok {
			return rt, nil
		}
		return types.ReadingType{}, errors.NotFoundf("manifest sensor ref=%s builtin", s.Ref)
	}
	dt, err := types.ParseDataType(s.DataType)
	if err != nil {
		return types.ReadingType{}, errors.Annotatef(err, "manifest sensor ref=%s", s.Ref)
	}
	rt := types.ReadingType{
		Ref:       s.Ref,
		DataType:  dt,
		Arity:     s.Arity,
		Delimiter: s.Delimiter,
		Scale:     s.Scale,
	}
	if rt.Arity == 0 {
		rt.Arity = 1
	}
	if s.Min != nil && s.Max != nil {
		rt.Min, rt.Max, rt.HasRange = *s.Min, *s.Max, true
	}
	return rt, rt.Validate()
}

func (a actuatorDoc) actuator() (*types.Actuator, error) {
	dt, err := types.ParseDataType(a.DataType)
	if err != nil {
		return nil, errors.Annotatef(err, "manifest actuator ref=%s", a.Ref)
	}
	v, err := nodeValue(&a.Value)
	if err != nil {
		return nil, errors.Annotatef(err, "manifest actuator ref=%s", a.Ref)
	}
	act := types.NewActuator(a.Ref, dt, v)
	act.Scale = a.Scale
	return act, nil
}

func nodeValue(n *yaml.Node) (types.Value, error) {
	if n.Kind == 0 {
		return types.Value{}, nil
	}
	if n.Kind != yaml.ScalarNode {
		return types.Value{}, errors.NotValidf("value kind=%d not scalar", n.Kind)
	}
	switch n.ShortTag() {
	case "!!null":
		return types.Value{}, nil
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return types.Bool(b), err
	case "!!int", "!!float":
		var f float64
		err := n.Decode(&f)
		return types.Numeric(f), err
	}
	return types.String(n.Value), nil
}

// Reader is satisfied by config.FullReader, relative names follow config location.
type Reader interface {
	Normalize(name string) string
	ReadAll(path string) ([]byte, error)
}

// Load reads and parses manifest file, empty name means Default().
func Load(log *log2.Log, r Reader, name string) (*Manifest, error) {
	if name == "" {
		log.Debugf("manifest not configured, using builtin sensors")
		return Default(), nil
	}
	path := r.Normalize(name)
	b, err := r.ReadAll(path)
	if err != nil {
		return nil, errors.Annotatef(err, "manifest path=%s", path)
	}
	if b == nil {
		return nil, errors.NotFoundf("manifest path=%s", path)
	}
	m, err := Parse(log, b)
	return m, errors.Annotatef(err, "manifest path=%s", path)
}

func (m *Manifest) Sensor(ref string) (types.ReadingType, bool) {
	for _, rt := range m.Sensors {
		if rt.Ref == ref {
			return rt, true
		}
	}
	return types.ReadingType{}, false
}

func (m *Manifest) Actuator(ref string) *types.Actuator {
	for _, a := range m.Actuators {
		if a.Ref == ref {
			return a
		}
	}
	return nil
}

func (m *Manifest) Alarm(ref string) *types.Alarm {
	for _, a := range m.Alarms {
		if a.Ref == ref {
			return a
		}
	}
	return nil
}

func (m *Manifest) AlarmRefs() []string {
	refs := make([]string, len(m.Alarms))
	for i, a := range m.Alarms {
		refs[i] = a.Ref
	}
	return refs
}

func (m *Manifest) ActuatorRefs() []string {
	refs := make([]string, len(m.Actuators))
	for i, a := range m.Actuators {
		refs[i] = a.Ref
	}
	return refs
}

func (m *Manifest) String() string {
	return fmt.Sprintf("Manifest(sensors=%d actuators=%d alarms=%d)", len(m.Sensors), len(m.Actuators), len(m.Alarms))
}

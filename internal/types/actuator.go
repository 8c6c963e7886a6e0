package types

import (
	"fmt"
	"sync"
)

type ActuatorState string

const (
	ActuatorReady ActuatorState = "READY"
	ActuatorBusy  ActuatorState = "BUSY"
	ActuatorError ActuatorState = "ERROR"
)

// ActuationError is raised on invalid actuator value or actuator without reference.
type ActuationError struct {
	Ref    string
	Reason string
}

func (e *ActuationError) Error() string {
	if e.Ref == "" {
		return "actuation: " + e.Reason
	}
	return fmt.Sprintf("actuation ref=%s: %s", e.Ref, e.Reason)
}

func NewActuationError(ref, format string, args ...interface{}) *ActuationError {
	return &ActuationError{Ref: ref, Reason: fmt.Sprintf(format, args...)}
}

// Actuator as defined in device manifest.
// State: Ready -> Busy (on SetValue) -> Ready or Error (missing ref, terminal).
type Actuator struct {
	mu       sync.Mutex
	Ref      string
	DataType DataType
	// Scale applies to numeric values in text protocol, 0 means 1.
	Scale float64
	state ActuatorState
	value Value
}

func NewActuator(ref string, dt DataType, initial Value) *Actuator {
	return &Actuator{Ref: ref, DataType: dt, state: ActuatorReady, value: initial}
}

func (a *Actuator) State() ActuatorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == "" {
		return ActuatorReady
	}
	return a.state
}

func (a *Actuator) Value() Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

func (a *Actuator) SetValue(v Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = ActuatorBusy
	if a.Ref == "" {
		a.state = ActuatorError
		return NewActuationError("", "actuator reference missing")
	}
	a.value = v
	a.state = ActuatorReady
	return nil
}

// Snapshot is consistent copy for encoding.
func (a *Actuator) Snapshot() ActuatorSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := ActuatorSnapshot{Ref: a.Ref, DataType: a.DataType, Scale: a.Scale, State: a.state, Value: a.value}
	if s.State == "" {
		s.State = ActuatorReady
	}
	return s
}

func (a *Actuator) String() string {
	s := a.Snapshot()
	return fmt.Sprintf("%s:%s state=%s value=%s", s.Ref, s.DataType, s.State, s.Value.String())
}

type ActuatorSnapshot struct {
	Ref      string
	DataType DataType
	Scale    float64
	State    ActuatorState
	Value    Value
}

func (s ActuatorSnapshot) ScaleOrOne() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

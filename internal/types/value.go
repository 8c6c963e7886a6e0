// Package types holds the device value model: reading types, readings,
// alarms and actuators. Entities are plain values with explicit Clone.
package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type DataType string

const (
	DataNumeric DataType = "NUMERIC"
	DataString  DataType = "STRING"
	DataBoolean DataType = "BOOLEAN"
)

func ParseDataType(s string) (DataType, error) {
	switch dt := DataType(strings.ToUpper(strings.TrimSpace(s))); dt {
	case DataNumeric, DataString, DataBoolean:
		return dt, nil
	}
	return "", errors.NotValidf("data type=%q", s)
}

// Value is one scalar of a reading or actuator.
// Zero Value is "missing".
type Value struct {
	kind DataType
	num  float64
	str  string
	b    bool
}

func Numeric(f float64) Value { return Value{kind: DataNumeric, num: f} }
func String(s string) Value   { return Value{kind: DataString, str: s} }
func Bool(b bool) Value       { return Value{kind: DataBoolean, b: b} }

func Numerics(fs ...float64) []Value {
	vs := make([]Value, len(fs))
	for i, f := range fs {
		vs[i] = Numeric(f)
	}
	return vs
}

func (v Value) Kind() DataType { return v.kind }
func (v Value) IsMissing() bool { return v.kind == "" }

// Float returns numeric form. Strings are parsed, booleans map to 1/0.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case DataNumeric:
		return v.num, nil
	case DataBoolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case DataString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, errors.Annotatef(err, "value=%q", v.str)
		}
		return f, nil
	}
	return 0, errors.New("value missing")
}

// Boolean recognizes true/false (case-insensitive), numeric 0 and 1.
func (v Value) Boolean() (b bool, ok bool) {
	switch v.kind {
	case DataBoolean:
		return v.b, true
	case DataNumeric:
		switch v.num {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	case DataString:
		s := strings.TrimSpace(v.str)
		switch {
		case strings.EqualFold(s, "true") || s == "1":
			return true, true
		case strings.EqualFold(s, "false") || s == "0":
			return false, true
		}
	}
	return false, false
}

func (v Value) String() string {
	switch v.kind {
	case DataNumeric:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case DataString:
		return v.str
	case DataBoolean:
		return strconv.FormatBool(v.b)
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case DataNumeric:
		return json.Marshal(v.num)
	case DataString:
		return json.Marshal(v.str)
	case DataBoolean:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("value empty input")
	}
	switch b[0] {
	case 'n':
		*v = Value{}
		return nil
	case 't', 'f':
		var x bool
		if err := json.Unmarshal(b, &x); err != nil {
			return errors.Annotate(err, "value bool")
		}
		*v = Bool(x)
	case '"':
		var x string
		if err := json.Unmarshal(b, &x); err != nil {
			return errors.Annotate(err, "value string")
		}
		*v = String(x)
	default:
		var x float64
		if err := json.Unmarshal(b, &x); err != nil {
			return errors.Annotate(err, "value numeric")
		}
		*v = Numeric(x)
	}
	return nil
}

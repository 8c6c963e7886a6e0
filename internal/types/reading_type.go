package types

import (
	"fmt"

	"github.com/juju/errors"
)

// ReadingType describes a sensor feed as listed in device manifest.
// Scale is the multiplier applied before integer rendering in text protocol.
type ReadingType struct {
	Ref       string   `json:"ref"`
	DataType  DataType `json:"data_type"`
	Arity     int      `json:"arity"`
	Delimiter string   `json:"delimiter,omitempty"`
	Scale     float64  `json:"scale"`
	Min       float64  `json:"min,omitempty"`
	Max       float64  `json:"max,omitempty"`
	HasRange  bool     `json:"has_range,omitempty"`
}

func (rt ReadingType) IsScalar() bool { return rt.Arity == 1 }

// ScaleOrOne treats unset scale as identity.
func (rt ReadingType) ScaleOrOne() float64 {
	if rt.Scale == 0 {
		return 1
	}
	return rt.Scale
}

func (rt ReadingType) Validate() error {
	if rt.Ref == "" {
		return errors.NotValidf("reading type ref empty")
	}
	switch rt.DataType {
	case DataNumeric, DataString, DataBoolean:
	default:
		return errors.NotValidf("reading type ref=%s data type=%q", rt.Ref, rt.DataType)
	}
	if rt.Arity < 1 {
		return errors.NotValidf("reading type ref=%s arity=%d", rt.Ref, rt.Arity)
	}
	if rt.HasRange && rt.Min > rt.Max {
		return errors.NotValidf("reading type ref=%s range min=%v > max=%v", rt.Ref, rt.Min, rt.Max)
	}
	return nil
}

func (rt ReadingType) String() string {
	return fmt.Sprintf("%s:%s/%d", rt.Ref, rt.DataType, rt.Arity)
}

func scalar(ref string, scale, min, max float64) ReadingType {
	return ReadingType{Ref: ref, DataType: DataNumeric, Arity: 1, Scale: scale, Min: min, Max: max, HasRange: true}
}

func unbounded(ref string, scale float64) ReadingType {
	return ReadingType{Ref: ref, DataType: DataNumeric, Arity: 1, Scale: scale}
}

func xyz(ref string, scale float64) ReadingType {
	return ReadingType{Ref: ref, DataType: DataNumeric, Arity: 3, Delimiter: "|", Scale: scale}
}

var (
	Temperature   = scalar("T", 10, -40, 80)
	Pressure      = scalar("P", 10, 900, 1100)
	Humidity      = scalar("H", 10, 0, 100)
	Light         = scalar("LT", 10, 0, 100)
	Accelerometer = func() ReadingType {
		rt := xyz("ACL", 10)
		rt.Min, rt.Max, rt.HasRange = -1, 1, true
		return rt
	}()
	Magnetometer = xyz("MAG", 10)
	Gyroscope    = xyz("GYR", 10)
	Steps        = unbounded("STP", 1)
	Heartrate    = scalar("BPM", 1, 0, 1000)
	Calories     = scalar("KCAL", 1, 0, 10000)
	Generic      = unbounded("GEN", 10)
	AirQuality   = scalar("O", 1, 0, 10000)
)

var builtinReadingTypes = []ReadingType{
	Temperature, Pressure, Humidity, Light,
	Accelerometer, Magnetometer, Gyroscope,
	Steps, Heartrate, Calories, Generic, AirQuality,
}

func BuiltinReadingTypes() []ReadingType {
	out := make([]ReadingType, len(builtinReadingTypes))
	copy(out, builtinReadingTypes)
	return out
}

func LookupReadingType(ref string) (ReadingType, bool) {
	for _, rt := range builtinReadingTypes {
		if rt.Ref == ref {
			return rt, true
		}
	}
	return ReadingType{}, false
}

package types

import (
	"math/rand"
	"strconv"
)

// RandomValues makes demo values within reading type range.
// Unbounded numeric types use [0, 100).
func (rt ReadingType) RandomValues(rnd *rand.Rand) []Value {
	n := rt.Arity
	if n < 1 {
		n = 1
	}
	vs := make([]Value, n)
	for i := range vs {
		switch rt.DataType {
		case DataBoolean:
			vs[i] = Bool(rnd.Intn(2) == 1)
		case DataString:
			vs[i] = String("demo-" + strconv.Itoa(rnd.Intn(1000)))
		default:
			min, max := 0.0, 100.0
			if rt.HasRange {
				min, max = rt.Min, rt.Max
			}
			vs[i] = Numeric(min + rnd.Float64()*(max-min))
		}
	}
	return vs
}

package types

import (
	"fmt"
	"strings"
)

// Reading is one sample of a sensor feed.
// Timestamp is unix seconds, 0 means not assigned yet.
type Reading struct {
	Type      ReadingType `json:"type"`
	Values    []Value     `json:"values"`
	Timestamp int64       `json:"utc,omitempty"`
}

func NewReading(rt ReadingType, timestamp int64, values ...Value) *Reading {
	return &Reading{Type: rt, Values: values, Timestamp: timestamp}
}

func (r *Reading) Ref() string { return r.Type.Ref }

func (r *Reading) SetValue(v Value)      { r.Values = []Value{v} }
func (r *Reading) SetValues(vs []Value)  { r.Values = vs }
func (r *Reading) SetTimestamp(ts int64) { r.Timestamp = ts }

func (r *Reading) Clone() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	if r.Values != nil {
		c.Values = make([]Value, len(r.Values))
		copy(c.Values, r.Values)
	}
	return &c
}

func (r *Reading) String() string {
	ss := make([]string, len(r.Values))
	for i, v := range r.Values {
		ss[i] = v.String()
	}
	delim := r.Type.Delimiter
	if delim == "" {
		delim = ","
	}
	return fmt.Sprintf("Reading(%s=%s utc=%d)", r.Type.Ref, strings.Join(ss, delim), r.Timestamp)
}

// ReadingGroup is readings sharing one timestamp.
type ReadingGroup struct {
	Timestamp int64
	Readings  []*Reading
}

func (g *ReadingGroup) Add(rs ...*Reading) { g.Readings = append(g.Readings, rs...) }

type ReadingGroupCollection struct {
	Groups []ReadingGroup
}

func (c *ReadingGroupCollection) Add(g ReadingGroup) { c.Groups = append(c.Groups, g) }

// Len counts readings in all groups.
func (c *ReadingGroupCollection) Len() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Readings)
	}
	return n
}

// FromReadings groups readings by timestamp.
// Group order is order of first occurrence of each timestamp,
// readings keep input order within group.
func FromReadings(readings []*Reading) ReadingGroupCollection {
	c := ReadingGroupCollection{}
	index := make(map[int64]int, len(readings))
	for _, r := range readings {
		if r == nil {
			continue
		}
		i, ok := index[r.Timestamp]
		if !ok {
			i = len(c.Groups)
			index[r.Timestamp] = i
			c.Groups = append(c.Groups, ReadingGroup{Timestamp: r.Timestamp})
		}
		c.Groups[i].Readings = append(c.Groups[i].Readings, r)
	}
	return c
}

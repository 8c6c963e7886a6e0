// Package buffer keeps readings and alarms that could not be published yet.
//
// Buffer is bounded by capacity (0 means unbounded). When full it either
// drops the new item or evicts the oldest one, depending on overwrite flag.
// Items are cloned on the way in and on the way out.
//
// Buffer is not safe for concurrent use, callers serialize access.
package buffer

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/internal/types"
	"github.com/wolkabout/wolkconnect-go/log2"
)

// Item is an entity that can be buffered, usually a pointer type.
type Item[T any] interface {
	Clone() T
	SetTimestamp(int64)
}

type Buffer[T Item[T]] struct {
	items     []T
	capacity  int
	overwrite bool

	now     func() time.Time
	metrics *Metrics
	log     *log2.Log
}

type Option[T Item[T]] func(*Buffer[T])

// WithClock replaces wall clock used by insert with useNow.
func WithClock[T Item[T]](now func() time.Time) Option[T] {
	return func(b *Buffer[T]) {
		if now != nil {
			b.now = now
		}
	}
}

func WithMetrics[T Item[T]](m *Metrics) Option[T] {
	return func(b *Buffer[T]) { b.metrics = m }
}

func WithLog[T Item[T]](log *log2.Log) Option[T] {
	return func(b *Buffer[T]) { b.log = log }
}

func New[T Item[T]](capacity int, overwrite bool, opts ...Option[T]) *Buffer[T] {
	if capacity < 0 {
		panic(fmt.Sprintf("code error buffer capacity=%d", capacity))
	}
	b := &Buffer[T]{
		capacity:  capacity,
		overwrite: overwrite,
		now:       time.Now,
	}
	b.apply(opts)
	return b
}

func (self *Buffer[T]) apply(opts []Option[T]) {
	for _, opt := range opts {
		if opt != nil {
			opt(self)
		}
	}
}

func (self *Buffer[T]) Len() int        { return len(self.items) }
func (self *Buffer[T]) Capacity() int   { return self.capacity }
func (self *Buffer[T]) Overwrite() bool { return self.overwrite }

func (self *Buffer[T]) Insert(item T, useNow bool) {
	self.InsertMany([]T{item}, useNow)
}

// InsertMany clones items and applies capacity policy to each in order.
// With useNow all clones get the same timestamp, clock is sampled once per call.
// Nil items are skipped.
func (self *Buffer[T]) InsertMany(items []T, useNow bool) {
	var ts int64
	if useNow {
		ts = self.now().Unix()
	}
	for i, item := range items {
		if isNil(item) {
			self.log.Errorf("buffer insert skip nil item index=%d", i)
			continue
		}
		c := item.Clone()
		if useNow {
			c.SetTimestamp(ts)
		}
		self.push(c)
	}
	self.metrics.size(len(self.items))
}

func (self *Buffer[T]) push(item T) {
	if self.capacity > 0 && len(self.items) >= self.capacity {
		if !self.overwrite {
			self.log.Debugf("buffer full capacity=%d drop new item", self.capacity)
			self.metrics.drop()
			return
		}
		copy(self.items, self.items[1:])
		self.items[len(self.items)-1] = item
		self.metrics.evict()
		self.metrics.insert()
		return
	}
	self.items = append(self.items, item)
	self.metrics.insert()
}

// Reconfigure applies new policy to existing content.
// Items over capacity are removed as if they were inserted under new policy:
// oldest go with overwrite, newest otherwise.
func (self *Buffer[T]) Reconfigure(capacity int, overwrite bool) {
	if capacity < 0 {
		panic(fmt.Sprintf("code error buffer capacity=%d", capacity))
	}
	self.capacity = capacity
	self.overwrite = overwrite
	if capacity == 0 || len(self.items) <= capacity {
		return
	}
	excess := len(self.items) - capacity
	if overwrite {
		self.items = append(self.items[:0:0], self.items[excess:]...)
	} else {
		self.items = self.items[:capacity:capacity]
	}
	self.log.Infof("buffer reconfigure capacity=%d removed=%d", capacity, excess)
	self.metrics.size(len(self.items))
}

// Snapshot returns clones of buffered items, oldest first.
func (self *Buffer[T]) Snapshot() []T {
	out := make([]T, len(self.items))
	for i, item := range self.items {
		out[i] = item.Clone()
	}
	return out
}

func (self *Buffer[T]) Clear() {
	self.items = nil
	self.metrics.size(0)
}

func (self *Buffer[T]) String() string {
	return fmt.Sprintf("Buffer(len=%d capacity=%d overwrite=%t)", len(self.items), self.capacity, self.overwrite)
}

// DeserializationError means persisted buffer content can not be restored.
type DeserializationError struct {
	Reason string
}

func (e *DeserializationError) Error() string { return "buffer deserialize: " + e.Reason }

// IsDeserialization also looks through juju annotations.
func IsDeserialization(err error) bool {
	_, ok := errors.Cause(err).(*DeserializationError)
	return ok
}

type document[T any] struct {
	Capacity  *int  `json:"capacity"`
	Overwrite *bool `json:"overwrite"`
	Items     []T   `json:"items"`
}

func (self *Buffer[T]) MarshalBinary() ([]byte, error) {
	items := self.items
	if items == nil {
		items = []T{}
	}
	doc := document[T]{Capacity: &self.capacity, Overwrite: &self.overwrite, Items: items}
	b, err := json.Marshal(doc)
	return b, errors.Annotate(err, "buffer marshal")
}

// UnmarshalBinary replaces configuration and content.
// On error buffer is left untouched.
func (self *Buffer[T]) UnmarshalBinary(b []byte) error {
	var doc document[T]
	if err := json.Unmarshal(b, &doc); err != nil {
		return &DeserializationError{Reason: err.Error()}
	}
	switch {
	case doc.Capacity == nil:
		return &DeserializationError{Reason: "capacity missing"}
	case *doc.Capacity < 0:
		return &DeserializationError{Reason: fmt.Sprintf("capacity=%d", *doc.Capacity)}
	case doc.Overwrite == nil:
		return &DeserializationError{Reason: "overwrite missing"}
	case doc.Items == nil:
		return &DeserializationError{Reason: "items missing"}
	case *doc.Capacity > 0 && len(doc.Items) > *doc.Capacity:
		return &DeserializationError{Reason: fmt.Sprintf("items=%d exceed capacity=%d", len(doc.Items), *doc.Capacity)}
	}
	for i, item := range doc.Items {
		if isNil(item) {
			return &DeserializationError{Reason: fmt.Sprintf("item %d is null", i)}
		}
	}
	self.capacity = *doc.Capacity
	self.overwrite = *doc.Overwrite
	self.items = doc.Items
	if len(self.items) == 0 {
		self.items = nil
	}
	self.metrics.size(len(self.items))
	return nil
}

func isNil(x interface{}) bool {
	if x == nil {
		return true
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Unmarshal restores buffer from MarshalBinary output.
func Unmarshal[T Item[T]](b []byte, opts ...Option[T]) (*Buffer[T], error) {
	buf := New[T](0, false, opts...)
	if err := buf.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadingsCollection groups buffered readings by timestamp.
func ReadingsCollection(buf *Buffer[*types.Reading]) types.ReadingGroupCollection {
	return types.FromReadings(buf.Snapshot())
}

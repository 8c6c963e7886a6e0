package buffer

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of one buffer instance, labeled by component ("readings", "alarms").
// nil *Metrics is valid and records nothing.
type Metrics struct {
	inserted prometheus.Counter
	dropped  prometheus.Counter
	evicted  prometheus.Counter
	length   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer, component string) (*Metrics, error) {
	labels := prometheus.Labels{"component": component}
	m := &Metrics{
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wolk",
			Subsystem:   "buffer",
			Name:        "inserted_total",
			ConstLabels: labels,
			Help:        "Items accepted into buffer",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wolk",
			Subsystem:   "buffer",
			Name:        "dropped_total",
			ConstLabels: labels,
			Help:        "New items discarded because buffer was full",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wolk",
			Subsystem:   "buffer",
			Name:        "evicted_total",
			ConstLabels: labels,
			Help:        "Oldest items removed to make room for new ones",
		}),
		length: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "wolk",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of buffered items",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.inserted, m.dropped, m.evicted, m.length} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Annotatef(err, "buffer metrics component=%s", component)
		}
	}
	return m, nil
}

func (m *Metrics) insert() {
	if m != nil {
		m.inserted.Inc()
	}
}

func (m *Metrics) drop() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) evict() {
	if m != nil {
		m.evicted.Inc()
	}
}

func (m *Metrics) size(n int) {
	if m != nil {
		m.length.Set(float64(n))
	}
}

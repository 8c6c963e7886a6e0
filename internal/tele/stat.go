package tele

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wolkabout/wolkconnect-go/helpers/atomic_clock"
)

const (
	kindReadings = "readings"
	kindAlarm    = "alarm"
	kindActuator = "actuator"
)

// Stat is agent counters, exposed to prometheus when registry is given.
type Stat struct {
	Published     *prometheus.CounterVec
	PublishFailed prometheus.Counter
	Buffered      *prometheus.CounterVec
	Commands      *prometheus.CounterVec
	Errors        prometheus.Counter

	LastPublish atomic_clock.Clock
	LastCommand atomic_clock.Clock
}

func newStat(reg prometheus.Registerer) (*Stat, error) {
	s := &Stat{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wolk",
			Subsystem: "agent",
			Name:      "published_total",
			Help:      "Messages delivered to broker",
		}, []string{"kind"}),
		PublishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wolk",
			Subsystem: "agent",
			Name:      "publish_failed_total",
			Help:      "Publish attempts failed or skipped while offline",
		}),
		Buffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wolk",
			Subsystem: "agent",
			Name:      "buffered_total",
			Help:      "Entities put into offline buffer",
		}, []string{"kind"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wolk",
			Subsystem: "agent",
			Name:      "commands_total",
			Help:      "Inbound actuator commands executed",
		}, []string{"command"}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wolk",
			Subsystem: "agent",
			Name:      "errors_total",
			Help:      "Errors logged by agent",
		}),
	}
	if reg == nil {
		return s, nil
	}
	for _, c := range []prometheus.Collector{s.Published, s.PublishFailed, s.Buffered, s.Commands, s.Errors} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Annotate(err, "tele stat register")
		}
	}
	return s, nil
}

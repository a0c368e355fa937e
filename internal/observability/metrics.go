package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles Prometheus metrics for the orchestrator and provides a
// ready-to-serve /metrics handler.
type Collector struct {
	gatherer prometheus.Gatherer

	LocationEvents *prometheus.CounterVec

	RadioNodes     prometheus.Gauge
	AssignedNEMs   prometheus.Gauge
	RunningDaemons prometheus.Gauge
}

// NewCollector registers orchestrator Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "location_events_total",
		Help: "Total number of received location events, labeled by handling result.",
	}, []string{"result"})
	events, err := registerCounterVec(reg, events, "location_events_total")
	if err != nil {
		return nil, err
	}

	radioNodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radio_nodes",
		Help: "Current number of registered radio nodes.",
	}), "radio_nodes")
	if err != nil {
		return nil, err
	}
	assigned, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assigned_nems",
		Help: "Current number of NEM ids assigned to radio interfaces.",
	}), "assigned_nems")
	if err != nil {
		return nil, err
	}
	daemons, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "running_daemons",
		Help: "Current number of emulator daemons started by the orchestrator.",
	}), "running_daemons")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		LocationEvents: events,
		RadioNodes:     radioNodes,
		AssignedNEMs:   assigned,
		RunningDaemons: daemons,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordLocationEvent counts a handled location event by result.
func (c *Collector) RecordLocationEvent(result string) {
	if c == nil || c.LocationEvents == nil {
		return
	}
	c.LocationEvents.WithLabelValues(result).Inc()
}

// SetScenarioCounts drives the scenario gauges directly from the session
// mutators.
func (c *Collector) SetScenarioCounts(radioNodes, assignedNEMs, runningDaemons int) {
	if c == nil {
		return
	}
	if c.RadioNodes != nil {
		c.RadioNodes.Set(float64(radioNodes))
	}
	if c.AssignedNEMs != nil {
		c.AssignedNEMs.Set(float64(assignedNEMs))
	}
	if c.RunningDaemons != nil {
		c.RunningDaemons.Set(float64(runningDaemons))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

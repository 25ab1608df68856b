// Package telemetry exposes the eNB agent's own operational metrics
// (as opposed to the RAN telemetry it relays to the controller): frame
// throughput, scheduler drift, and tick latency, scraped over
// Prometheus and optionally mirrored to InfluxDB.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes Prometheus metrics for the agent process itself.
type Collector struct {
	gatherer prometheus.Gatherer

	FramesSent      *prometheus.CounterVec
	DuoSwitchPos    prometheus.Gauge
	SliceCredit     *prometheus.GaugeVec
	TickDuration    prometheus.Histogram
}

// NewCollector registers the agent's metrics against reg, falling back
// to the default Prometheus registry if reg is nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	framesSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enb_agent_frames_sent_total",
		Help: "Number of wire frames sent to the controller, by message type.",
	}, []string{"type"})
	framesSent, err := registerCounterVec(reg, framesSent, "enb_agent_frames_sent_total")
	if err != nil {
		return nil, err
	}

	duoSwitchPos := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enb_ran_duo_switch_position",
		Help: "Current RBG switch position of the duo-dynamic slice scheduler.",
	})
	duoSwitchPos, err = registerGauge(reg, duoSwitchPos, "enb_ran_duo_switch_position")
	if err != nil {
		return nil, err
	}

	sliceCredit := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enb_ran_slice_rbg_credit",
		Help: "Configured RBG resource of each reported slice, by slice id.",
	}, []string{"slice"})
	sliceCredit, err = registerGaugeVec(reg, sliceCredit, "enb_ran_slice_rbg_credit")
	if err != nil {
		return nil, err
	}

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enb_agent_tick_duration_seconds",
		Help:    "Wall-clock duration of one agent tick loop iteration.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
	tickDuration, err = registerHistogram(reg, tickDuration, "enb_agent_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		FramesSent:   framesSent,
		DuoSwitchPos: duoSwitchPos,
		SliceCredit:  sliceCredit,
		TickDuration: tickDuration,
	}, nil
}

// Gatherer returns the Prometheus gatherer backing this collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick records one tick loop iteration's duration.
func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// IncFramesSent increments the per-type frame counter.
func (c *Collector) IncFramesSent(msgType string) {
	if c == nil || c.FramesSent == nil {
		return
	}
	c.FramesSent.WithLabelValues(msgType).Inc()
}

// SetDuoSwitchPosition records the duo scheduler's current switch
// position.
func (c *Collector) SetDuoSwitchPosition(pos uint32) {
	if c == nil || c.DuoSwitchPos == nil {
		return
	}
	c.DuoSwitchPos.Set(float64(pos))
}

// SetSliceCredit records a slice's configured RBG resource, as carried in
// the slice report.
func (c *Collector) SetSliceCredit(sliceID string, credit int32) {
	if c == nil || c.SliceCredit == nil {
		return
	}
	c.SliceCredit.WithLabelValues(sliceID).Set(float64(credit))
}

func registerCounterVec(reg prometheus.Registerer, cv *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(cv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return cv, nil
}

func registerGaugeVec(reg prometheus.Registerer, gv *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(gv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gv, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

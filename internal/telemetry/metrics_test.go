package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.IncFramesSent("ue_report")
	c.SetDuoSwitchPosition(12)
	c.SetSliceCredit("1", 5)
	c.ObserveTick(0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Gather() returned no metric families after registering a collector")
	}
}

func TestNewCollectorIsIdempotentOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("second NewCollector against same registry: %v", err)
	}
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector
	c.IncFramesSent("x")
	c.SetDuoSwitchPosition(1)
	c.SetSliceCredit("1", 1)
	c.ObserveTick(0)
	if c.Gatherer() != nil {
		t.Fatal("Gatherer() on nil *Collector should return nil")
	}
}

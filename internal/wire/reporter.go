package wire

import (
	"fmt"

	"github.com/kewinrausch/empower-srsLTE/internal/agent"
)

// FrameSentCounter is the narrow metrics hook AgentReporter increments
// once per frame actually handed to the transport, keyed by message
// type. internal/telemetry.Collector implements this.
type FrameSentCounter interface {
	IncFramesSent(msgType string)
}

// AgentReporter adapts a Transport into the agent.Reporter interface,
// wrapping each report in a Frame tagged with the owning eNB/cell and
// CBOR-encoding the payload.
type AgentReporter struct {
	transport Transport
	enbID     uint32
	cellPCI   uint16
	metrics   FrameSentCounter
}

// NewAgentReporter builds a Reporter that sends every report over
// transport, tagged with enbID/cellPCI.
func NewAgentReporter(transport Transport, enbID uint32, cellPCI uint16) *AgentReporter {
	return &AgentReporter{transport: transport, enbID: enbID, cellPCI: cellPCI}
}

// SetMetrics installs the frame-sent counter. Optional: a nil metrics
// hook (the default) just means send skips incrementing anything.
func (r *AgentReporter) SetMetrics(m FrameSentCounter) {
	r.metrics = m
}

func (r *AgentReporter) send(msgType MessageType, v interface{}) error {
	payload, err := MarshalPayload(v)
	if err != nil {
		return fmt.Errorf("wire: marshal payload: %w", err)
	}
	if err := r.transport.Send(Frame{
		EnbID:   r.enbID,
		CellPCI: r.cellPCI,
		Type:    msgType,
		Payload: payload,
	}); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.IncFramesSent(msgType.String())
	}
	return nil
}

func (r *AgentReporter) SendUEReport(reports []agent.UEReport) error {
	return r.send(UEReport, reports)
}

func (r *AgentReporter) SendMeasureReport(reports []agent.MeasureReport) error {
	return r.send(UEMeasReport, reports)
}

func (r *AgentReporter) SendMACPRBReport(report agent.CellPRBReport) error {
	return r.send(CellMeasReport, report)
}

func (r *AgentReporter) SendSliceReport(reports []agent.SliceReport) error {
	return r.send(SliceReport, reports)
}

package agent

import "github.com/sirupsen/logrus"

// NoOpReporter discards every report. It backs the `enb-agent serve
// --dummy` mode, where the tick loop and callback bookkeeping run for
// real but nothing is put on the wire (spec.md C5 "no-op agent
// variant").
type NoOpReporter struct {
	log *logrus.Logger
}

// NewNoOpReporter constructs a reporter that logs each report at debug
// level instead of sending it.
func NewNoOpReporter(log *logrus.Logger) *NoOpReporter {
	return &NoOpReporter{log: log}
}

func (r *NoOpReporter) SendUEReport(reports []UEReport) error {
	r.log.WithField("count", len(reports)).Debug("dummy mode: discarding UE report")
	return nil
}

func (r *NoOpReporter) SendMeasureReport(reports []MeasureReport) error {
	r.log.WithField("count", len(reports)).Debug("dummy mode: discarding RRC measurement report")
	return nil
}

func (r *NoOpReporter) SendMACPRBReport(report CellPRBReport) error {
	r.log.Debug("dummy mode: discarding MAC-PRB report")
	return nil
}

func (r *NoOpReporter) SendSliceReport(reports []SliceReport) error {
	r.log.WithField("count", len(reports)).Debug("dummy mode: discarding slice report")
	return nil
}

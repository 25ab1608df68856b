package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/kewinrausch/empower-srsLTE/internal/config"
)

// InfluxMirror writes a copy of the cell PRB and slice reports the agent
// sends to the controller into InfluxDB, for operators who want history the
// controller itself doesn't keep. Entirely optional: a nil *InfluxMirror
// is safe to call methods on, matching the teacher's nil-receiver
// collector pattern.
type InfluxMirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      *logrus.Logger
}

// NewInfluxMirror connects to the InfluxDB instance described by cfg.
// Returns (nil, nil) if cfg has no URL configured, so callers can
// always call methods on the result without a separate "enabled" check.
func NewInfluxMirror(cfg config.InfluxConfig, log *logrus.Logger) (*InfluxMirror, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: connect to influxdb at %s: %w", cfg.URL, err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("telemetry: influxdb health check failed: %s", msg)
	}

	log.WithFields(logrus.Fields{"url": cfg.URL, "bucket": cfg.Bucket, "org": cfg.Org}).
		Info("telemetry: connected to influxdb")

	return &InfluxMirror{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      log,
	}, nil
}

// WriteCellPRB mirrors one MAC-PRB report.
func (m *InfluxMirror) WriteCellPRB(enbID uint32, dlUsed, dlTotal, ulUsed, ulTotal uint32) {
	if m == nil {
		return
	}
	point := influxdb2.NewPoint("cell_prb",
		map[string]string{"enb_id": fmt.Sprintf("%d", enbID)},
		map[string]interface{}{
			"dl_used": dlUsed, "dl_total": dlTotal,
			"ul_used": ulUsed, "ul_total": ulTotal,
		},
		time.Now())

	if err := m.writeAPI.WritePoint(context.Background(), point); err != nil {
		m.log.WithError(err).Warn("telemetry: failed to mirror cell PRB report to influxdb")
	}
}

// WriteSliceCredit mirrors one slice's current RBG assignment.
func (m *InfluxMirror) WriteSliceCredit(enbID uint32, sliceID uint64, rbg int32, userCount int) {
	if m == nil {
		return
	}
	point := influxdb2.NewPoint("slice_rbg",
		map[string]string{
			"enb_id": fmt.Sprintf("%d", enbID),
			"slice":  fmt.Sprintf("%d", sliceID),
		},
		map[string]interface{}{"rbg": rbg, "users": userCount},
		time.Now())

	if err := m.writeAPI.WritePoint(context.Background(), point); err != nil {
		m.log.WithError(err).Warn("telemetry: failed to mirror slice report to influxdb")
	}
}

// Close releases the underlying InfluxDB client.
func (m *InfluxMirror) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Close()
}

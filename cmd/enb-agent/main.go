// Command enb-agent is the eNB-side telemetry/control agent: it runs the
// two-level RAN slice scheduler (C1-C2), the slice lifecycle manager
// (C3), and the tick-driven reporting loop (C4-C5), and speaks the
// length-prefixed CBOR wire protocol to a controller.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kewinrausch/empower-srsLTE/internal/agent"
	"github.com/kewinrausch/empower-srsLTE/internal/config"
	"github.com/kewinrausch/empower-srsLTE/internal/dispatch"
	"github.com/kewinrausch/empower-srsLTE/internal/logging"
	"github.com/kewinrausch/empower-srsLTE/internal/ranmanager"
	"github.com/kewinrausch/empower-srsLTE/internal/ransched"
	"github.com/kewinrausch/empower-srsLTE/internal/telemetry"
	"github.com/kewinrausch/empower-srsLTE/internal/wire"
)

// controllerTransport is what a dialed controller connection needs to
// support beyond agent.Reporter: trigger liveness checks for
// subscription gating, and the raw framed connection the dispatch
// package reads inbound requests from.
type controllerTransport interface {
	agent.TriggerChecker
	Conn() *wire.Conn
}

const Version = "0.1.0"

// managerSliceSource adapts internal/ranmanager.Manager to the narrow
// read side internal/agent polls, converting SliceSummary plus a
// GetSliceInfo lookup into the flattened view the agent needs for its
// slice report. Kept here rather than in ranmanager itself so that
// package stays free of any dependency on agent's report shapes.
type managerSliceSource struct {
	mgr *ranmanager.Manager
	log *logrus.Logger
}

func (s *managerSliceSource) DuoSwitchPosition() (uint32, bool) {
	return s.mgr.DuoSwitchPosition()
}

func (s *managerSliceSource) GetSlices() []agent.SliceSummaryView {
	summaries := s.mgr.GetSlices()
	out := make([]agent.SliceSummaryView, 0, len(summaries))
	for _, sum := range summaries {
		if sum.Admission {
			continue
		}
		info, err := s.mgr.GetSliceInfo(sum.ID, -1)
		if err != nil {
			s.log.WithField("slice_id", sum.ID).WithError(err).Warn("enb-agent: slice disappeared while building report")
			continue
		}
		out = append(out, agent.SliceSummaryView{
			SliceID:     sum.ID,
			UserSchedID: info.UserSchedID,
			RBG:         info.RBG,
			Users:       info.Users,
		})
	}
	return out
}

func main() {
	var configPath string
	var dummy bool

	rootCmd := &cobra.Command{
		Use:   "enb-agent",
		Short: "eNB RAN-slicing scheduler agent",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, dummy)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to agent configuration file")
	serveCmd.Flags().BoolVar(&dummy, "dummy", false, "Run with a no-op reporter instead of dialing a controller")
	serveCmd.MarkFlagRequired("config")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		logging.Agent().WithError(err).Fatal("enb-agent: command failed")
	}
}

func serve(configPath string, dummy bool) error {
	agentLog := logging.Agent()
	schedLog := logging.Sched()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.LoadDotenv(cfg, ".env"); err != nil {
		agentLog.WithError(err).Warn("enb-agent: failed to load .env overrides")
	}

	if err := logging.SetAgentLevel(cfg.LogLevel); err != nil {
		agentLog.WithField("log_level", cfg.LogLevel).WithError(err).Warn("enb-agent: invalid log level, keeping default")
	}
	if err := logging.SetSchedLevel(cfg.LogLevel); err != nil {
		schedLog.WithField("log_level", cfg.LogLevel).WithError(err).Warn("enb-agent: invalid sched log level, keeping default")
	}

	sched := ransched.New(schedLog)
	mgr := ranmanager.New(sched, schedLog)
	if err := mgr.EnsureDefaultSlice(); err != nil {
		return fmt.Errorf("ensure default slice: %w", err)
	}

	collector, err := telemetry.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}

	influx, err := telemetry.NewInfluxMirror(cfg.Telemetry.InfluxDB, agentLog)
	if err != nil {
		return fmt.Errorf("init influxdb mirror: %w", err)
	}
	defer influx.Close()

	var reporter agent.Reporter
	var dialed controllerTransport
	if dummy {
		agentLog.Info("enb-agent: running with --dummy, no controller connection will be made")
		reporter = agent.NewNoOpReporter(agentLog)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Controller.Addr, cfg.Controller.Port)
		d, err := wire.Dial(addr)
		if err != nil {
			return fmt.Errorf("dial controller %s: %w", addr, err)
		}
		dialed = d
		agentReporter := wire.NewAgentReporter(d, cfg.Enb.ID, cfg.Cell.PCI)
		agentReporter.SetMetrics(collector)
		reporter = agentReporter
	}

	a := agent.New(agentLog, reporter, &managerSliceSource{mgr: mgr, log: agentLog})
	a.SetEnbID(cfg.Enb.ID)
	a.SetTelemetry(collector, influx)
	if dialed != nil {
		a.SetTriggerChecker(dialed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp := dispatch.New(agentLog, a, mgr, cfg.Enb.ID, cfg.Cell.PCI, cfg.Cell.NPRB, cfg.Cell.DLEarfcn, cfg.Cell.ULEarfcn, cfg.Slicing.Enabled)
	if dialed != nil {
		go func() {
			if err := disp.Serve(ctx, dialed.Conn()); err != nil {
				agentLog.WithError(err).Warn("enb-agent: dispatch loop stopped")
			}
		}()
	}

	if cfg.Telemetry.MetricsAddr != "" {
		srv := telemetry.NewServer(cfg.Telemetry.MetricsAddr, collector, agentLog)
		srv.Start(ctx)
		agentLog.WithField("addr", cfg.Telemetry.MetricsAddr).Info("enb-agent: metrics server started")
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	agentLog.WithFields(logrus.Fields{
		"enb_id": cfg.Enb.ID,
		"pci":    cfg.Cell.PCI,
	}).Info("enb-agent: started, waiting for interrupt")

	<-sigCh
	agentLog.Info("enb-agent: received interrupt signal, shutting down")

	a.Stop()
	cancel()

	return nil
}

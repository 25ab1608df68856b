package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TickInterval is the agent loop's polling period (spec.md C4 "~100ms
// tick").
const TickInterval = 100 * time.Millisecond

// UEReport is what SendUEReport carries for one UE.
type UEReport struct {
	RNTI  uint16
	IMSI  uint64
	PLMN  uint32
	TMSI  uint64
	State UEState
}

// UEState is the connection state reported for a UE (spec.md §3 "User
// (agent view)").
type UEState uint8

const (
	UEConnected UEState = iota
	UEDisconnected
)

// CellMeasReading is one serving or neighbor cell reading inside a
// measurement report.
type CellMeasReading struct {
	PCI  uint16
	RSRP int32
	RSRQ int32
}

// MeasureReport is what SendMeasureReport carries for one UE's RRC
// measurement slot (spec.md §3 "Measurement slot").
type MeasureReport struct {
	RNTI      uint16
	ModID     uint8
	TrigID    uint8
	MeasID    uint32
	Serving   CellMeasReading
	Neighbors []CellMeasReading
}

// CellPRBReport is the periodic MAC-PRB rollup (spec.md C4 "MAC-PRB
// report"; §9 describes this as a hook the reference disabled and left
// for a future tick-driven report, wired here behind macReportSub).
type CellPRBReport struct {
	DLUsed, DLTotal uint32
	ULUsed, ULTotal uint32
}

// SliceReport is what SendSliceReport carries: one entry per non-default
// slice the RAN manager currently tracks (spec.md C4 "ran_check").
type SliceReport struct {
	SliceID     uint64
	UserSchedID uint32
	RBG         int32
	Users       []uint16
}

// Reporter is the agent's outbound side: whatever turns a dirty flag
// into a wire message. internal/wire provides the real implementation;
// tests use a fake.
type Reporter interface {
	SendUEReport(reports []UEReport) error
	SendMeasureReport(reports []MeasureReport) error
	SendMACPRBReport(report CellPRBReport) error
	SendSliceReport(reports []SliceReport) error
}

// TriggerChecker is the transport-facing liveness check a subscription
// is gated on (spec.md C6 "a transport-provided has_trigger(enb_id,
// trig_id) -> bool"). internal/wire's dialed transport implements this;
// tests use a fake.
type TriggerChecker interface {
	HasTrigger(enbID uint32, trigID uint8) bool
}

// SliceSource is the RAN-manager-facing read side the agent polls to
// build slice reports, kept narrow so agent tests don't need a real
// internal/ranmanager.Manager.
type SliceSource interface {
	GetSlices() []SliceSummaryView
}

// duoSwitchSource is an optional capability of a SliceSource: a RAN
// manager sitting on top of the duo-dynamic slice scheduler can report
// its current switch position. Checked with a type assertion so a
// SliceSource that doesn't have one (the multi-credit scheduler, or a
// test fake) just means ranCheck skips the gauge update.
type duoSwitchSource interface {
	DuoSwitchPosition() (pos uint32, ok bool)
}

// TelemetrySink is the Prometheus-facing observability hook the tick
// loop and slice report feed. internal/telemetry.Collector implements
// this; its methods are nil-receiver-safe, so a caller that never wires
// one in just gets unregistered metrics.
type TelemetrySink interface {
	ObserveTick(d time.Duration)
	SetDuoSwitchPosition(pos uint32)
	SetSliceCredit(sliceID string, credit int32)
}

// InfluxSink mirrors PRB and slice-credit samples to InfluxDB.
// internal/telemetry.InfluxMirror implements this; nil-receiver-safe.
type InfluxSink interface {
	WriteCellPRB(enbID uint32, dlUsed, dlTotal, ulUsed, ulTotal uint32)
	WriteSliceCredit(enbID uint32, sliceID uint64, rbg int32, userCount int)
}

// SliceSummaryView mirrors internal/ranmanager.SliceSummary plus the
// per-slice scheduling details a slice report needs.
type SliceSummaryView struct {
	SliceID     uint64
	UserSchedID uint32
	RBG         int32
	Users       []uint16
}

// Agent is the eNB telemetry/control agent: a tick loop that checks
// dirty flags and reports what changed, plus the per-UE and per-cell
// state the RRC/MAC callbacks in callbacks.go mutate.
type Agent struct {
	mu       sync.Mutex
	log      *logrus.Logger
	enbID    uint32
	reporter Reporter
	slices   SliceSource
	triggers TriggerChecker

	ues   map[uint16]*ueView
	cell  cellPRBAccumulator
	dirty dirtyFlags

	ueReportSub  subscription
	ranFeature   subscription
	macReportSub subscription

	telemetry TelemetrySink
	influx    InfluxSink

	state  state
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an agent in the stopped state. No trigger checker is
// installed until SetTriggerChecker is called; until then every
// subscription behaves as if its trigger were always alive (suitable for
// the --dummy no-op run).
func New(log *logrus.Logger, reporter Reporter, slices SliceSource) *Agent {
	return &Agent{
		log:      log,
		reporter: reporter,
		slices:   slices,
		ues:      make(map[uint16]*ueView),
	}
}

// SetEnbID records the eNB id used to check trigger liveness.
func (a *Agent) SetEnbID(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enbID = id
}

// SetTriggerChecker installs the transport-backed trigger liveness
// check subscriptions are gated on.
func (a *Agent) SetTriggerChecker(tc TriggerChecker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triggers = tc
}

// SetTelemetry installs the observability sinks the tick loop and
// ranCheck feed. Either argument may be nil.
func (a *Agent) SetTelemetry(t TelemetrySink, influx InfluxSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.telemetry = t
	a.influx = influx
}

func (a *Agent) hasTrigger(trigID uint8) bool {
	if a.triggers == nil {
		return true
	}
	return a.triggers.HasTrigger(a.enbID, trigID)
}

// SetupUEReport installs the UE-report subscription (spec.md C5
// "ue_report").
func (a *Agent) SetupUEReport(modID, trigID uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ueReportSub = subscription{enabled: true, modID: modID, trigID: trigID}
}

// SetupRANReport installs the slice-state subscription (spec.md C5
// "ran.*" / C4 "ran_feature_enabled").
func (a *Agent) SetupRANReport(modID, trigID uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ranFeature = subscription{enabled: true, modID: modID, trigID: trigID}
	a.dirty.markSlice()
}

// SetupMACReport installs the cell-PRB report subscription (spec.md §9
// "leave a hook for a future tick-driven MAC report").
func (a *Agent) SetupMACReport(modID, trigID uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.macReportSub = subscription{enabled: true, modID: modID, trigID: trigID}
}

// Start transitions stopped -> started and launches the tick loop.
// Starting an already-started or paused agent is a no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateStopped {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = stateStarted

	a.wg.Add(1)
	go a.run(loopCtx)
	return nil
}

// Pause suspends ticking without tearing down state. Resume with
// Start is not valid; call Resume.
func (a *Agent) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != stateStarted {
		return fmt.Errorf("agent is not started")
	}
	a.state = statePaused
	return nil
}

// Resume transitions paused -> started.
func (a *Agent) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != statePaused {
		return fmt.Errorf("agent is not paused")
	}
	a.state = stateStarted
	return nil
}

// Stop tears the tick loop down. Stopping an already-stopped agent is
// a no-op.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.state == stateStopped {
		a.mu.Unlock()
		return
	}
	a.state = stateStopped
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

func (a *Agent) run(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

// tick runs one iteration of the dirty-flag check. Paused agents still
// run the select loop (so Stop remains responsive) but skip reporting.
func (a *Agent) tick() {
	a.mu.Lock()
	paused := a.state == statePaused
	a.mu.Unlock()
	if paused {
		return
	}

	start := time.Now()

	ue, ran, _, slice := a.dirty.takeAll()

	if ue {
		a.dirtyUECheck()
	}
	if ran {
		a.macReportCheck()
	}
	// measure_check also reaps slots whose trigger has gone away, so it
	// runs every tick rather than only when a fresh reading arrived
	// (spec.md C4 "measure_check" step 3).
	a.measureCheck()
	if slice {
		a.ranCheck()
	}

	a.mu.Lock()
	sink := a.telemetry
	a.mu.Unlock()
	if sink != nil {
		sink.ObserveTick(time.Since(start))
	}
}

// dirtyUECheck sends a UE report for every UE with outstanding identity
// or state changes, gated by the UE-report subscription's trigger
// (spec.md C4 "dirty_ue_check").
func (a *Agent) dirtyUECheck() {
	a.mu.Lock()
	if !a.ueReportSub.enabled {
		a.mu.Unlock()
		return
	}
	if !a.hasTrigger(a.ueReportSub.trigID) {
		a.ueReportSub = subscription{}
		a.mu.Unlock()
		return
	}

	var reports []UEReport
	var drop []uint16
	for _, u := range a.ues {
		if !u.idDirty && !u.stateDirty {
			continue
		}
		state := UEConnected
		if !u.connected {
			state = UEDisconnected
		}
		reports = append(reports, UEReport{RNTI: u.rnti, IMSI: u.imsi, PLMN: u.plmn, TMSI: u.tmsi, State: state})
		u.idDirty, u.stateDirty = false, false
		if !u.connected {
			drop = append(drop, u.rnti)
		}
	}
	for _, rnti := range drop {
		delete(a.ues, rnti)
	}
	a.mu.Unlock()

	if len(reports) == 0 {
		return
	}
	if err := a.reporter.SendUEReport(reports); err != nil {
		a.log.WithError(err).Warn("dirty_ue_check: failed to send UE report")
	}
}

// macReportCheck sends the accumulated cell PRB report and resets the
// accumulator, gated by the MAC-report subscription (spec.md §9 "leave
// a hook for a future tick-driven MAC report").
func (a *Agent) macReportCheck() {
	a.mu.Lock()
	if !a.macReportSub.enabled {
		a.mu.Unlock()
		return
	}
	if !a.hasTrigger(a.macReportSub.trigID) {
		a.macReportSub = subscription{}
		a.mu.Unlock()
		return
	}
	report := CellPRBReport{
		DLUsed: a.cell.dlUsed, DLTotal: a.cell.dlTot,
		ULUsed: a.cell.ulUsed, ULTotal: a.cell.ulTot,
	}
	a.cell.reset()
	enbID := a.enbID
	influx := a.influx
	a.mu.Unlock()

	if err := a.reporter.SendMACPRBReport(report); err != nil {
		a.log.WithError(err).Warn("mac_report_check: failed to send MAC-PRB report")
		return
	}
	if influx != nil {
		influx.WriteCellPRB(enbID, report.DLUsed, report.DLTotal, report.ULUsed, report.ULTotal)
	}
}

// measureCheck walks every UE's active measurement slots, dropping any
// whose trigger has gone away and emitting a report for any with a
// fresh reading (spec.md C4 "measure_check").
func (a *Agent) measureCheck() {
	a.mu.Lock()
	var reports []MeasureReport
	for _, u := range a.ues {
		kept := u.meas[:0]
		for _, m := range u.meas {
			if !a.hasTrigger(m.trigID) {
				continue
			}
			kept = append(kept, m)
			if !m.cDirty {
				continue
			}
			r := MeasureReport{
				RNTI: u.rnti, ModID: m.modID, TrigID: m.trigID, MeasID: m.measID,
				Serving: CellMeasReading{PCI: m.serving.pci, RSRP: m.serving.rsrp, RSRQ: m.serving.rsrq},
			}
			count := uint32(0)
			for i := range m.neighbors {
				if !m.neighbors[i].dirty {
					continue
				}
				if count >= m.maxMeas {
					break
				}
				n := &m.neighbors[i]
				r.Neighbors = append(r.Neighbors, CellMeasReading{PCI: n.pci, RSRP: n.rsrp, RSRQ: n.rsrq})
				n.dirty = false
				count++
			}
			m.cDirty = false
			reports = append(reports, r)
		}
		u.meas = kept
	}
	a.mu.Unlock()

	if len(reports) == 0 {
		return
	}
	if err := a.reporter.SendMeasureReport(reports); err != nil {
		a.log.WithError(err).Warn("measure_check: failed to send RRC measurement report")
	}
}

// ranCheck sends a fresh slice report for every slice the slice source
// lists (in the running agent, every non-default slice the RAN manager
// tracks), gated by the RAN-report subscription (spec.md C4
// "ran_check").
func (a *Agent) ranCheck() {
	a.mu.Lock()
	enabled := a.ranFeature.enabled
	trig := a.ranFeature.trigID
	a.mu.Unlock()
	if !enabled {
		return
	}
	if !a.hasTrigger(trig) {
		a.mu.Lock()
		a.ranFeature = subscription{}
		a.mu.Unlock()
		return
	}

	if a.slices == nil {
		return
	}
	views := a.slices.GetSlices()
	reports := make([]SliceReport, 0, len(views))
	for _, v := range views {
		reports = append(reports, SliceReport{
			SliceID: v.SliceID, UserSchedID: v.UserSchedID, RBG: v.RBG, Users: v.Users,
		})
	}
	if err := a.reporter.SendSliceReport(reports); err != nil {
		a.log.WithError(err).Warn("ran_check: failed to send slice report")
		return
	}

	a.mu.Lock()
	sink := a.telemetry
	influx := a.influx
	enbID := a.enbID
	a.mu.Unlock()

	if sink != nil || influx != nil {
		for _, v := range views {
			if sink != nil {
				sink.SetSliceCredit(fmt.Sprintf("%d", v.SliceID), v.RBG)
			}
			if influx != nil {
				influx.WriteSliceCredit(enbID, v.SliceID, v.RBG, len(v.Users))
			}
		}
	}
	if sink != nil {
		if ds, ok := a.slices.(duoSwitchSource); ok {
			if pos, has := ds.DuoSwitchPosition(); has {
				sink.SetDuoSwitchPosition(pos)
			}
		}
	}
}

// Reset returns the agent to a clean baseline after a controller
// disconnect (spec.md C4 "reset()"): every subscription and measurement
// slot is cleared, the PRB accumulator is zeroed, but UEs stay
// registered and are marked dirty so their state is re-reported once
// the controller comes back.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ueReportSub = subscription{}
	a.ranFeature = subscription{}
	a.macReportSub = subscription{}
	a.cell.reset()

	for _, u := range a.ues {
		u.meas = nil
		u.idDirty = true
		u.stateDirty = true
	}
	a.dirty.markUE()
}

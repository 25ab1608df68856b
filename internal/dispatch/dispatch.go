// Package dispatch implements the agent callback dispatch of spec.md
// C5: it decodes inbound controller frames and turns them into calls
// against the agent (C4) and the RAN manager (C3), writing back
// whatever reply each request expects.
//
// The reference design describes this as a stateless, process-wide
// singleton reached through a pointer guarded by a mutex only at
// assignment. That indirection exists to let a C callback table resolve
// "the active agent" without a closure; Go has closures and explicit
// dependency injection, so Dispatcher is just an ordinary value wired
// once at startup and handed the connection to serve.
package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kewinrausch/empower-srsLTE/internal/agent"
	"github.com/kewinrausch/empower-srsLTE/internal/ranid"
	"github.com/kewinrausch/empower-srsLTE/internal/ranmanager"
	"github.com/kewinrausch/empower-srsLTE/internal/wire"
)

// Dispatcher adapts one controller connection's inbound frames onto an
// agent/RAN-manager pair. One Dispatcher per eNB process; the cell
// parameters it advertises in enb_setup_request replies are fixed at
// construction.
type Dispatcher struct {
	log *logrus.Logger

	agent *agent.Agent
	mgr   *ranmanager.Manager

	enbID   uint32
	cellPCI uint16

	nPRB     uint32
	dlEarfcn uint32
	ulEarfcn uint32

	slicingEnabled bool
}

// New constructs a Dispatcher. slicingEnabled mirrors spec.md §6's
// compile-time slicing feature flag: when false, every ran.* request
// is answered with SliceNotSupported instead of being carried out.
func New(log *logrus.Logger, a *agent.Agent, mgr *ranmanager.Manager, enbID uint32, cellPCI uint16, nPRB, dlEarfcn, ulEarfcn uint32, slicingEnabled bool) *Dispatcher {
	return &Dispatcher{
		log: log, agent: a, mgr: mgr,
		enbID: enbID, cellPCI: cellPCI,
		nPRB: nPRB, dlEarfcn: dlEarfcn, ulEarfcn: ulEarfcn,
		slicingEnabled: slicingEnabled,
	}
}

// Serve reads frames from conn until ctx is cancelled or a frame fails
// to decode, dispatching each to its handler. A handler error is logged
// and does not end Serve; a read/decode failure does (the error is
// returned, conn is left to the caller to close), since at that point
// the stream itself can no longer be trusted.
func (d *Dispatcher) Serve(ctx context.Context, conn *wire.Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := conn.ReadFrame()
		if err != nil {
			return fmt.Errorf("dispatch: read frame: %w", err)
		}
		if err := d.handle(conn, f); err != nil {
			d.log.WithError(err).WithField("type", f.Type).Warn("dispatch: handler failed")
		}
	}
}

func (d *Dispatcher) handle(conn *wire.Conn, f wire.Frame) error {
	switch f.Type {
	case wire.EnbSetupRequest:
		return d.handleEnbSetup(conn, f)
	case wire.UEReportRequest:
		return d.handleUEReport(f)
	case wire.UEMeasureRequest:
		return d.handleUEMeasure(f)
	case wire.CellMeasureRequest:
		return d.handleCellMeasure(f)
	case wire.MACReportRequest:
		return d.handleMACReport(f)
	case wire.SliceRequest:
		return d.handleSliceRequest(conn, f)
	case wire.SliceAdd:
		return d.handleSliceAdd(conn, f)
	case wire.SliceRem:
		return d.handleSliceRem(conn, f)
	case wire.SliceConf:
		return d.handleSliceConf(conn, f)
	case wire.Disconnected:
		d.agent.Reset()
		return nil
	default:
		return fmt.Errorf("unhandled inbound message type %d", f.Type)
	}
}

func (d *Dispatcher) reply(conn *wire.Conn, moduleID uint8, msgType wire.MessageType, v interface{}) error {
	payload, err := wire.MarshalPayload(v)
	if err != nil {
		return fmt.Errorf("marshal reply payload: %w", err)
	}
	return conn.WriteFrame(wire.Frame{
		EnbID: d.enbID, CellPCI: d.cellPCI, ModuleID: moduleID, Type: msgType, Payload: payload,
	})
}

func (d *Dispatcher) replySliceNotSupported(conn *wire.Conn, moduleID uint8) error {
	return d.reply(conn, moduleID, wire.SliceNotSupported, struct{}{})
}

// handleEnbSetup answers with the cell's static capability
// advertisement (spec.md C5 "enb_setup_request").
func (d *Dispatcher) handleEnbSetup(conn *wire.Conn, f wire.Frame) error {
	capReport := wire.EnbCapReportPayload{
		SupportsUEReport:    true,
		SupportsUEMeasure:   true,
		SupportsCellMeasure: true,
		NPRB:                d.nPRB,
		DLEarfcn:            d.dlEarfcn,
		ULEarfcn:            d.ulEarfcn,
		SliceSchedID:        d.mgr.GetSliceSched(),
		SlicingSupported:    d.slicingEnabled,
	}
	return d.reply(conn, f.ModuleID, wire.EnbCapReport, capReport)
}

// handleUEReport installs the UE-report subscription (spec.md C5
// "ue_report(mod, trig)").
func (d *Dispatcher) handleUEReport(f wire.Frame) error {
	var p wire.SubscribeRequestPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode ue_report request: %w", err)
	}
	d.agent.SetupUEReport(p.ModID, p.TrigID)
	return nil
}

// handleUEMeasure installs or updates one UE's RRC measurement slot
// (spec.md C5 "ue_measure"). Handing the resulting measurement
// configuration to RRC (spec.md §4.4 "rrc.setup_ue_measurement") is
// outside this agent's scope: RRC is an external collaborator per
// spec.md §1, so this only updates the agent's own bookkeeping.
func (d *Dispatcher) handleUEMeasure(f wire.Frame) error {
	var p wire.UEMeasureRequestPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode ue_measure request: %w", err)
	}
	d.agent.InstallMeasSlot(p.RNTI, p.MeasID, p.ModID, p.TrigID, p.Earfcn, p.MaxCells, p.MaxMeas, p.Interval)
	return nil
}

// handleCellMeasure installs the cell-wide PRB reporting subscription
// (spec.md C5 "cell_measure"). mac_report targets the same underlying
// subscription: the scheduler only ever tracks cell 0, so there is no
// second cell-scoped report to distinguish it from.
func (d *Dispatcher) handleCellMeasure(f wire.Frame) error {
	var p wire.SubscribeRequestPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode cell_measure request: %w", err)
	}
	d.agent.SetupMACReport(p.ModID, p.TrigID)
	return nil
}

// handleMACReport installs the cell-wide PRB reporting subscription
// (spec.md C5 "mac_report"); see handleCellMeasure.
func (d *Dispatcher) handleMACReport(f wire.Frame) error {
	var p wire.SubscribeRequestPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode mac_report request: %w", err)
	}
	d.agent.SetupMACReport(p.ModID, p.TrigID)
	return nil
}

// handleSliceRequest answers with a full slice dump (SliceID == 0) or a
// single slice's report (spec.md C5 "ran.slice_request").
func (d *Dispatcher) handleSliceRequest(conn *wire.Conn, f wire.Frame) error {
	if !d.slicingEnabled {
		return d.replySliceNotSupported(conn, f.ModuleID)
	}
	var p wire.SliceRequestPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode slice_request: %w", err)
	}

	var ids []uint64
	if p.SliceID == 0 {
		for _, s := range d.mgr.GetSlices() {
			ids = append(ids, s.ID)
		}
	} else {
		ids = []uint64{p.SliceID}
	}

	reports := make([]agent.SliceReport, 0, len(ids))
	for _, id := range ids {
		info, err := d.mgr.GetSliceInfo(id, -1)
		if err != nil {
			d.log.WithField("slice_id", id).WithError(err).Warn("slice_request: slice lookup failed")
			continue
		}
		reports = append(reports, agent.SliceReport{
			SliceID: id, UserSchedID: info.UserSchedID, RBG: info.RBG, Users: info.Users,
		})
	}
	return d.reply(conn, f.ModuleID, wire.SliceReport, reports)
}

// handleSliceAdd creates a new slice from the PLMN/tag packed into its
// id and marks the slice-state report dirty (spec.md C5
// "ran.slice_add").
func (d *Dispatcher) handleSliceAdd(conn *wire.Conn, f wire.Frame) error {
	if !d.slicingEnabled {
		return d.replySliceNotSupported(conn, f.ModuleID)
	}
	var p wire.SliceAddPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode slice_add: %w", err)
	}
	plmn, tag := ranid.PLMNOf(p.SliceID), ranid.TagOf(p.SliceID)
	if _, err := d.mgr.CreateSlice(plmn, tag, p.Conf.TTI, p.Conf.RBG, p.Conf.Users); err != nil {
		return fmt.Errorf("slice_add %#x: %w", p.SliceID, err)
	}
	d.agent.NotifySliceChanged()
	return nil
}

// handleSliceRem removes a slice and marks the slice-state report dirty
// (spec.md C5 "ran.slice_rem").
func (d *Dispatcher) handleSliceRem(conn *wire.Conn, f wire.Frame) error {
	if !d.slicingEnabled {
		return d.replySliceNotSupported(conn, f.ModuleID)
	}
	var p wire.SliceRemPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode slice_rem: %w", err)
	}
	if err := d.mgr.RemoveSlice(p.SliceID); err != nil {
		return fmt.Errorf("slice_rem %#x: %w", p.SliceID, err)
	}
	d.agent.NotifySliceChanged()
	return nil
}

// handleSliceConf idempotently creates-then-configures a slice (spec.md
// C5 "ran.slice_conf"): a CreateSlice failure because the slice already
// exists falls back to reconfiguring it in place.
func (d *Dispatcher) handleSliceConf(conn *wire.Conn, f wire.Frame) error {
	if !d.slicingEnabled {
		return d.replySliceNotSupported(conn, f.ModuleID)
	}
	var p wire.SliceConfRequestPayload
	if err := wire.UnmarshalPayload(f.Payload, &p); err != nil {
		return fmt.Errorf("decode slice_conf: %w", err)
	}

	plmn, tag := ranid.PLMNOf(p.SliceID), ranid.TagOf(p.SliceID)
	if _, err := d.mgr.CreateSlice(plmn, tag, p.Conf.TTI, p.Conf.RBG, p.Conf.Users); err != nil {
		if err := d.mgr.SetSlice(p.SliceID, p.Conf.TTI, p.Conf.RBG, p.Conf.Users); err != nil {
			return fmt.Errorf("slice_conf %#x: %w", p.SliceID, err)
		}
	}
	d.agent.NotifySliceChanged()
	return nil
}

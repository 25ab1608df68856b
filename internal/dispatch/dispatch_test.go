package dispatch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kewinrausch/empower-srsLTE/internal/agent"
	"github.com/kewinrausch/empower-srsLTE/internal/ranid"
	"github.com/kewinrausch/empower-srsLTE/internal/ranmanager"
	"github.com/kewinrausch/empower-srsLTE/internal/ransched"
	"github.com/kewinrausch/empower-srsLTE/internal/wire"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// testRig wires a real scheduler/manager/agent together plus an
// in-process pipe standing in for the controller connection, so each
// test can write a request frame and read back whatever reply the
// dispatcher produced.
type testRig struct {
	disp       *Dispatcher
	serverConn *wire.Conn
	clientConn *wire.Conn
	cancel     context.CancelFunc
}

func newTestRig(t *testing.T, slicingEnabled bool) *testRig {
	t.Helper()
	log := testLogger()

	sched := ransched.New(log)
	mgr := ranmanager.New(sched, log)
	if err := mgr.EnsureDefaultSlice(); err != nil {
		t.Fatalf("EnsureDefaultSlice: %v", err)
	}

	a := agent.New(log, agent.NewNoOpReporter(log), nil)

	disp := New(log, a, mgr, 1, 7, 100, 6300, 18300, slicingEnabled)

	server, client := net.Pipe()
	rig := &testRig{
		disp:       disp,
		serverConn: wire.NewConn(server),
		clientConn: wire.NewConn(client),
	}

	ctx, cancel := context.WithCancel(context.Background())
	rig.cancel = cancel
	go disp.Serve(ctx, rig.serverConn)
	return rig
}

func (r *testRig) roundTrip(t *testing.T, f wire.Frame) wire.Frame {
	t.Helper()
	if err := r.clientConn.WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	type result struct {
		frame wire.Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		got, err := r.clientConn.ReadFrame()
		ch <- result{got, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("ReadFrame: %v", res.err)
		}
		return res.frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply frame")
		return wire.Frame{}
	}
}

func (r *testRig) close() {
	r.cancel()
	r.clientConn.Close()
}

func TestHandleEnbSetupRepliesWithCapability(t *testing.T) {
	rig := newTestRig(t, true)
	defer rig.close()

	payload, _ := wire.MarshalPayload(struct{}{})
	reply := rig.roundTrip(t, wire.Frame{Type: wire.EnbSetupRequest, ModuleID: 3, Payload: payload})

	if reply.Type != wire.EnbCapReport {
		t.Fatalf("reply type = %v, want EnbCapReport", reply.Type)
	}
	if reply.ModuleID != 3 {
		t.Fatalf("reply ModuleID = %d, want 3 (echoed)", reply.ModuleID)
	}

	var capReport wire.EnbCapReportPayload
	if err := wire.UnmarshalPayload(reply.Payload, &capReport); err != nil {
		t.Fatalf("decode cap report: %v", err)
	}
	if capReport.NPRB != 100 || !capReport.SlicingSupported {
		t.Fatalf("cap report = %+v, unexpected", capReport)
	}
}

func TestHandleSliceRequestFullDumpIncludesDefaultSlice(t *testing.T) {
	rig := newTestRig(t, true)
	defer rig.close()

	req, _ := wire.MarshalPayload(wire.SliceRequestPayload{SliceID: 0})
	reply := rig.roundTrip(t, wire.Frame{Type: wire.SliceRequest, Payload: req})

	if reply.Type != wire.SliceReport {
		t.Fatalf("reply type = %v, want SliceReport", reply.Type)
	}
	var reports []agent.SliceReport
	if err := wire.UnmarshalPayload(reply.Payload, &reports); err != nil {
		t.Fatalf("decode slice report: %v", err)
	}
	if len(reports) != 1 || reports[0].SliceID != ranid.DefaultSlice {
		t.Fatalf("reports = %+v, want exactly the default slice", reports)
	}
}

func TestHandleSliceAddThenSliceRequestSeesNewSlice(t *testing.T) {
	rig := newTestRig(t, true)
	defer rig.close()

	sliceID := ranid.PackID(0x00f110, 42)
	addReq, _ := wire.MarshalPayload(wire.SliceAddPayload{
		SliceID: sliceID,
		Conf:    wire.SliceConfPayload{TTI: -1, RBG: 5, Users: []uint16{10}},
	})
	rig.clientConn.WriteFrame(wire.Frame{Type: wire.SliceAdd, Payload: addReq})

	// slice_add has no reply; give the dispatcher a moment to process it.
	time.Sleep(20 * time.Millisecond)

	req, _ := wire.MarshalPayload(wire.SliceRequestPayload{SliceID: sliceID})
	reply := rig.roundTrip(t, wire.Frame{Type: wire.SliceRequest, Payload: req})

	var reports []agent.SliceReport
	if err := wire.UnmarshalPayload(reply.Payload, &reports); err != nil {
		t.Fatalf("decode slice report: %v", err)
	}
	if len(reports) != 1 || reports[0].SliceID != sliceID || reports[0].RBG != 5 {
		t.Fatalf("reports = %+v, want one slice with RBG=5", reports)
	}
	if len(reports[0].Users) != 1 || reports[0].Users[0] != 10 {
		t.Fatalf("reports[0].Users = %v, want [10] admitted from slice_add's conf", reports[0].Users)
	}
}

func TestHandleSliceConfReconcilesMembership(t *testing.T) {
	rig := newTestRig(t, true)
	defer rig.close()

	sliceID := ranid.PackID(0x00f110, 43)
	addReq, _ := wire.MarshalPayload(wire.SliceAddPayload{
		SliceID: sliceID,
		Conf:    wire.SliceConfPayload{TTI: -1, RBG: 5, Users: []uint16{10, 20}},
	})
	rig.clientConn.WriteFrame(wire.Frame{Type: wire.SliceAdd, Payload: addReq})
	time.Sleep(20 * time.Millisecond)

	confReq, _ := wire.MarshalPayload(wire.SliceConfRequestPayload{
		SliceID: sliceID,
		Conf:    wire.SliceConfPayload{TTI: -1, RBG: 5, Users: []uint16{20, 30}},
	})
	rig.clientConn.WriteFrame(wire.Frame{Type: wire.SliceConf, Payload: confReq})
	time.Sleep(20 * time.Millisecond)

	req, _ := wire.MarshalPayload(wire.SliceRequestPayload{SliceID: sliceID})
	reply := rig.roundTrip(t, wire.Frame{Type: wire.SliceRequest, Payload: req})

	var reports []agent.SliceReport
	if err := wire.UnmarshalPayload(reply.Payload, &reports); err != nil {
		t.Fatalf("decode slice report: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %+v, want exactly one slice", reports)
	}
	got := map[uint16]bool{}
	for _, rnti := range reports[0].Users {
		got[rnti] = true
	}
	if got[10] || !got[20] || !got[30] {
		t.Fatalf("users = %v, want 10 dropped and 20/30 present", reports[0].Users)
	}
}

func TestHandleSliceRequestNotSupportedWhenSlicingDisabled(t *testing.T) {
	rig := newTestRig(t, false)
	defer rig.close()

	req, _ := wire.MarshalPayload(wire.SliceRequestPayload{SliceID: 0})
	reply := rig.roundTrip(t, wire.Frame{Type: wire.SliceRequest, Payload: req})

	if reply.Type != wire.SliceNotSupported {
		t.Fatalf("reply type = %v, want SliceNotSupported", reply.Type)
	}
}

func TestHandleDisconnectedCallsAgentReset(t *testing.T) {
	rig := newTestRig(t, true)
	defer rig.close()

	rig.disp.agent.AddUser(5, 0xaaaa, 0x00f110)
	rig.disp.agent.InstallMeasSlot(5, 1, 0, 0, 6300, 4, 4, 240)
	rig.disp.agent.SetupUEReport(0, 0)

	payload, _ := wire.MarshalPayload(struct{}{})
	rig.clientConn.WriteFrame(wire.Frame{Type: wire.Disconnected, Payload: payload})
	time.Sleep(20 * time.Millisecond)

	// Reset clears the measurement slot but keeps UE 5 registered and
	// marks it dirty, so a subsequent ReportRRCMeasure against the old
	// measID is silently dropped (the slot is gone) while a fresh
	// dirty-UE report still goes out.
	rig.disp.agent.ReportRRCMeasure(5, 1, 10, -90, -10)
	rig.disp.agent.ProcessDLResults(5, agent.AllocationType0, 1, 1, 100)
}

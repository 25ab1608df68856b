package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeReporter struct {
	mu      sync.Mutex
	ueCalls int
	measure int
	prb     int
	sliceN  int
	lastUE  []UEReport
	lastPRB CellPRBReport
}

func (f *fakeReporter) SendUEReport(reports []UEReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ueCalls++
	f.lastUE = reports
	return nil
}

func (f *fakeReporter) SendMeasureReport(reports []MeasureReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.measure++
	return nil
}

func (f *fakeReporter) SendMACPRBReport(report CellPRBReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prb++
	f.lastPRB = report
	return nil
}

func (f *fakeReporter) SendSliceReport(reports []SliceReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sliceN++
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestQuantizeMeasIntervalRoundsUp(t *testing.T) {
	cases := map[uint32]uint32{
		100:   120,
		120:   120,
		300:   480,
		1000:  1024,
		5000:  5120,
		20000: 10240,
		0:     120,
	}
	for in, want := range cases {
		if got := QuantizeMeasInterval(in); got != want {
			t.Errorf("QuantizeMeasInterval(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAgentAddUserMarksDirtyAndReports(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.SetupUEReport(0, 0)

	a.AddUser(100, 0x1234, 0x00f110)
	a.dirtyUECheck()

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.ueCalls != 1 {
		t.Fatalf("ueCalls = %d, want 1", rep.ueCalls)
	}
	if len(rep.lastUE) != 1 || rep.lastUE[0].RNTI != 100 {
		t.Fatalf("lastUE = %v, want one report for RNTI 100", rep.lastUE)
	}
	if rep.lastUE[0].State != UEConnected {
		t.Fatalf("lastUE[0].State = %v, want UEConnected", rep.lastUE[0].State)
	}
}

func TestAgentUpdateUserIDClearsStaleRNTIOnRenewal(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)

	// RNTI 100 is a UE the agent still thinks is live, carrying
	// measurement state and PRB counters.
	a.AddUser(100, 0xaaaa, 0x00f110)
	a.InstallMeasSlot(100, 1, 0, 0, 1000, 1, 1, 120)
	a.ReportRRCMeasure(100, 1, 55, -80, -10)
	a.ProcessDLResults(100, AllocationType1, 5, 1, 25)

	// The MAC hands the same subscriber a new RNTI before rem_user ever
	// arrived for 100; the new RNTI shows up with a provisional identity
	// first, then RRC identity resolution completes.
	a.AddUser(200, 0, 0x00f110)
	a.UpdateUserID(200, 0xaaaa, 0, 0x00f110)

	a.mu.Lock()
	stale, ok := a.ues[100]
	fresh := a.ues[200]
	a.mu.Unlock()

	if !ok {
		t.Fatal("stale RNTI 100 entry was removed outright, want cleared in place")
	}
	if stale.connected {
		t.Fatal("stale RNTI 100 entry still marked connected after renewal")
	}
	if len(stale.meas) != 0 || stale.dlPRB != 0 {
		t.Fatalf("stale RNTI 100 entry not cleared: meas=%v dlPRB=%d", stale.meas, stale.dlPRB)
	}
	if fresh.imsi != 0xaaaa || fresh.plmn != 0x00f110 {
		t.Fatalf("RNTI 200 = %+v, want imsi=0xaaaa plmn=0x00f110", fresh)
	}
	if !fresh.connected {
		t.Fatal("RNTI 200 not marked connected after UpdateUserID")
	}
}

func TestAgentDirtyUECheckSkipsCleanUsers(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.SetupUEReport(0, 0)

	a.AddUser(100, 1, 0x00f110)
	a.dirtyUECheck()
	a.dirtyUECheck() // second call: nothing dirty

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.ueCalls != 1 {
		t.Fatalf("ueCalls = %d, want 1 (second check should have sent nothing)", rep.ueCalls)
	}
}

func TestAgentDirtyUECheckGatedBySubscription(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)

	a.AddUser(100, 1, 0x00f110)
	a.dirtyUECheck() // no subscription installed yet

	rep.mu.Lock()
	calls := rep.ueCalls
	rep.mu.Unlock()
	if calls != 0 {
		t.Fatalf("ueCalls = %d, want 0 with no subscription installed", calls)
	}
}

func TestAgentDirtyUECheckDropsUEAfterDisconnectReport(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.SetupUEReport(0, 0)

	a.AddUser(100, 1, 0x00f110)
	a.dirtyUECheck()
	a.RemUser(100)
	a.dirtyUECheck()

	a.mu.Lock()
	_, stillPresent := a.ues[100]
	a.mu.Unlock()
	if stillPresent {
		t.Fatal("UE 100 still present after its disconnected report was sent")
	}

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.lastUE[0].State != UEDisconnected {
		t.Fatalf("lastUE[0].State = %v, want UEDisconnected", rep.lastUE[0].State)
	}
}

func TestAgentMACReportCheckAccumulatesCellPRB(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.SetupMACReport(0, 0)
	a.AddUser(100, 1, 0x00f110)

	a.ProcessDLResults(100, AllocationType0, 4, 2, 25)
	a.ProcessDLResults(100, AllocationType0, 2, 2, 25)
	a.macReportCheck()

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.prb != 1 {
		t.Fatalf("prb calls = %d, want 1", rep.prb)
	}
	if rep.lastPRB.DLUsed != 12 { // (4*2) + (2*2)
		t.Fatalf("DLUsed = %d, want 12", rep.lastPRB.DLUsed)
	}
	if rep.lastPRB.DLTotal != 25 {
		t.Fatalf("DLTotal = %d, want 25", rep.lastPRB.DLTotal)
	}
}

type fakeSliceSource struct {
	views []SliceSummaryView
}

func (f *fakeSliceSource) GetSlices() []SliceSummaryView { return f.views }

func TestAgentRanCheckSendsSliceReport(t *testing.T) {
	rep := &fakeReporter{}
	src := &fakeSliceSource{views: []SliceSummaryView{{SliceID: 1, UserSchedID: 0x80000001, RBG: 5}}}
	a := New(testLogger(), rep, src)
	a.SetupRANReport(0, 0)

	a.ranCheck()

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.sliceN != 1 {
		t.Fatalf("sliceN = %d, want 1", rep.sliceN)
	}
}

func TestAgentRanCheckDropsSubscriptionWhenTriggerGone(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, &fakeSliceSource{})
	a.SetTriggerChecker(deadTriggers{})
	a.SetupRANReport(0, 7)

	a.ranCheck()

	a.mu.Lock()
	enabled := a.ranFeature.enabled
	a.mu.Unlock()
	if enabled {
		t.Fatal("ranFeature subscription still enabled after its trigger disappeared")
	}
}

type deadTriggers struct{}

func (deadTriggers) HasTrigger(enbID uint32, trigID uint8) bool { return false }

func TestAgentMeasureCheckReportsServingAndNeighbors(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.AddUser(100, 1, 0x00f110)
	a.InstallMeasSlot(100, 1, 0, 0, 6300, 4, 4, 240)

	a.ReportRRCMeasure(100, 1, 55, -90, -10)
	a.ReportNeighborMeasure(100, 1, 56, -100, -15)
	a.measureCheck()

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.measure != 1 {
		t.Fatalf("measure calls = %d, want 1", rep.measure)
	}
}

func TestAgentResetRetainsUEsButClearsMeasurementsAndPRB(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.AddUser(100, 1, 0x00f110)
	a.InstallMeasSlot(100, 1, 0, 0, 6300, 4, 4, 240)
	a.ProcessDLResults(100, AllocationType2, 3, 1, 25)

	a.Reset()

	a.mu.Lock()
	u, ok := a.ues[100]
	cellDL := a.cell.dlUsed
	a.mu.Unlock()

	if !ok {
		t.Fatal("UE 100 missing after Reset, want it retained")
	}
	if len(u.meas) != 0 {
		t.Fatalf("len(meas) = %d after Reset, want 0", len(u.meas))
	}
	if !u.idDirty || !u.stateDirty {
		t.Fatal("UE 100 not marked dirty after Reset, want re-report on reconnect")
	}
	if cellDL != 0 {
		t.Fatalf("cell.dlUsed = %d after Reset, want 0", cellDL)
	}
}

func TestAgentStartStopLifecycle(t *testing.T) {
	rep := &fakeReporter{}
	a := New(testLogger(), rep, nil)
	a.SetupUEReport(0, 0)
	a.AddUser(100, 1, 0x00f110)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		rep.mu.Lock()
		calls := rep.ueCalls
		rep.mu.Unlock()
		if calls > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("tick loop never sent a UE report within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}

	a.Stop()
}

func TestAgentPauseRequiresRunningAndResumes(t *testing.T) {
	a := New(testLogger(), &fakeReporter{}, nil)
	if err := a.Pause(); err == nil {
		t.Fatal("Pause() on a stopped agent = nil error, want failure")
	}

	ctx := context.Background()
	_ = a.Start(ctx)
	if err := a.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := a.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	a.Stop()
}

func TestProcessULResultsAccumulatesPerUser(t *testing.T) {
	a := New(testLogger(), &fakeReporter{}, nil)
	a.AddUser(100, 1, 0x00f110)
	// Type 1 is a per-PRB bitmask: rbgCount is already the PRB count, so
	// rbgSize (2) does not factor in.
	a.ProcessULResults(100, AllocationType1, 5, 2, 25)

	a.mu.Lock()
	ul := a.ues[100].ulPRB
	a.mu.Unlock()

	if ul != 5 {
		t.Fatalf("ulPRB = %d, want 5", ul)
	}
}

func TestProcessULResultsType2UsesRIVFormula(t *testing.T) {
	a := New(testLogger(), &fakeReporter{}, nil)
	a.AddUser(100, 1, 0x00f110)
	// Type 2 is an RIV over the cell's PRB grid: floor(riv/cell_prbs)+1,
	// multiplied by cell_prbs again for uplink. riv=52, cell_prbs=25 =>
	// (52/25 + 1) * 25 = 3 * 25 = 75.
	a.ProcessULResults(100, AllocationType2, 52, 0, 25)

	a.mu.Lock()
	ul := a.ues[100].ulPRB
	a.mu.Unlock()

	if ul != 75 {
		t.Fatalf("ulPRB = %d, want 75", ul)
	}
}

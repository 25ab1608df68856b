package ransched

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeUE is a hand-rolled UEQuery stand-in, matching the teacher's
// preference for small local fakes over a mocking library.
type fakeUE struct {
	rnti    uint16
	newData uint32
	harq    *DLHarqProc
	empty   *DLHarqProc
}

func (f *fakeUE) RNTI() uint16                     { return f.rnti }
func (f *fakeUE) PendingDLNewData(tti uint32) uint32 { return f.newData }
func (f *fakeUE) PendingDLHARQ(tti uint32) (*DLHarqProc, bool) {
	if f.harq == nil {
		return nil, false
	}
	return f.harq, true
}
func (f *fakeUE) EmptyDLHARQ() (*DLHarqProc, bool) {
	if f.empty == nil {
		return nil, false
	}
	return f.empty, true
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func fixedRBGParams(maxRBG, rbgSize uint32) func(uint32) (uint32, uint32, bool) {
	return func(uint32) (uint32, uint32, bool) { return maxRBG, rbgSize, true }
}

func TestSchedulerRemSliceRejectsDefaultSlice(t *testing.T) {
	s := New(testLogger())
	if err := s.AddSlice(1); err != nil {
		t.Fatalf("AddSlice(1): %v", err)
	}
	if err := s.RemSlice(1); err == nil {
		t.Fatal("RemSlice(default slice) = nil error, want failure")
	}
}

func TestSchedulerAddSliceRejectsDuplicate(t *testing.T) {
	s := New(testLogger())
	if err := s.AddSlice(42); err != nil {
		t.Fatalf("AddSlice(42): %v", err)
	}
	if err := s.AddSlice(42); err == nil {
		t.Fatal("AddSlice(duplicate) = nil error, want failure")
	}
}

func TestSchedulerAddSliceUserRequiresExistingSlice(t *testing.T) {
	s := New(testLogger())
	if err := s.AddSliceUser(100, 42, false); err == nil {
		t.Fatal("AddSliceUser(missing slice) = nil error, want failure")
	}
}

func TestSchedulerRemSliceUserZeroRemovesFromAllSlices(t *testing.T) {
	s := New(testLogger())
	_ = s.AddSlice(1)
	_ = s.AddSlice(2)
	_ = s.AddSliceUser(100, 1, false)
	_ = s.AddSliceUser(100, 2, false)

	s.RemSliceUser(100, 0)

	info1, _ := s.GetSliceInfo(1, -1)
	info2, _ := s.GetSliceInfo(2, -1)
	if len(info1.Users) != 0 || len(info2.Users) != 0 {
		t.Fatalf("user still present after RemSliceUser(rnti, 0): slice1=%v slice2=%v", info1.Users, info2.Users)
	}
}

func TestSchedulerGetSliceInfoCapsUserList(t *testing.T) {
	s := New(testLogger())
	_ = s.AddSlice(1)
	for _, rnti := range []uint16{10, 20, 30} {
		_ = s.AddSliceUser(rnti, 1, false)
	}

	info, err := s.GetSliceInfo(1, 2)
	if err != nil {
		t.Fatalf("GetSliceInfo: %v", err)
	}
	if len(info.Users) != 2 {
		t.Fatalf("len(Users) = %d, want 2", len(info.Users))
	}
	if info.UserSchedID != UserSchedRoundRobinID {
		t.Fatalf("UserSchedID = %#x, want %#x", info.UserSchedID, UserSchedRoundRobinID)
	}
}

func TestSchedulerGetUserAllocationGrantsNewData(t *testing.T) {
	s := New(testLogger())
	_ = s.AddSlice(1)
	_ = s.SetSlice(1, -1, 25)
	_ = s.AddSliceUser(100, 1, false)

	ue := &fakeUE{rnti: 100, newData: 350, empty: &DLHarqProc{}}
	ueDB := map[uint16]UEQuery{100: ue}

	s.NewTTI(ueDB, 0, 25, 2, 0, fixedRBGParams(25, 4))

	h, ok := s.GetUserAllocation(ue)
	if !ok {
		t.Fatal("GetUserAllocation() ok = false, want true")
	}
	if CountRBG(h.Mask) == 0 {
		t.Fatal("GetUserAllocation() returned an empty mask")
	}
	if !h.Pending {
		t.Fatal("GetUserAllocation() Pending = false, want true for a fresh grant")
	}

	u := s.users[100]
	if u.DLRBGDelta != CountRBG(h.Mask) {
		t.Fatalf("DLRBGDelta = %d, want %d", u.DLRBGDelta, CountRBG(h.Mask))
	}
}

func TestSchedulerGetUserAllocationPreservesMatchingHARQMask(t *testing.T) {
	s := New(testLogger())
	_ = s.AddSlice(1)
	_ = s.SetSlice(1, -1, 25)
	_ = s.AddSliceUser(100, 1, false)

	ueDB := map[uint16]UEQuery{100: &fakeUE{rnti: 100}}
	s.NewTTI(ueDB, 0, 25, 2, 0, fixedRBGParams(25, 4))

	var owned [MaxRBG]bool
	for i := 0; i < MaxRBG; i++ {
		if s.owner[i] == 100 {
			owned[i] = true
		}
	}
	ownedMask := CalcRBGMask(owned)

	ue := &fakeUE{rnti: 100, harq: &DLHarqProc{Mask: ownedMask, Pending: true}}
	h, ok := s.GetUserAllocation(ue)
	if !ok {
		t.Fatal("GetUserAllocation() ok = false, want true")
	}
	if h.Mask != ownedMask {
		t.Fatalf("Mask = %#x, want unchanged %#x", h.Mask, ownedMask)
	}
}

func TestSchedulerGetUserAllocationRedrawsNarrowHARQMask(t *testing.T) {
	s := New(testLogger())
	_ = s.AddSlice(1)
	_ = s.SetSlice(1, -1, 25)
	_ = s.AddSliceUser(100, 1, false)

	ueDB := map[uint16]UEQuery{100: &fakeUE{rnti: 100}}
	s.NewTTI(ueDB, 0, 25, 2, 0, fixedRBGParams(25, 4))

	// A retransmission mask narrower than the owned set must be replaced
	// by a same-cardinality mask drawn from owned RBGs, never widened.
	smallMask := uint32(1 << 0)
	ue := &fakeUE{rnti: 100, harq: &DLHarqProc{Mask: smallMask, Pending: true}}
	h, ok := s.GetUserAllocation(ue)
	if !ok {
		t.Fatal("GetUserAllocation() ok = false, want true")
	}
	if CountRBG(h.Mask) != 1 {
		t.Fatalf("CountRBG(Mask) = %d, want 1 (same cardinality as original HARQ mask)", CountRBG(h.Mask))
	}
}

func TestSchedulerGetUserAllocationNoOwnedRBGsReturnsFalse(t *testing.T) {
	s := New(testLogger())
	_ = s.AddSlice(1)
	// Slice has no members and no resources configured: RR scheduler
	// assigns no owner, so the UE owns nothing this TTI.
	ueDB := map[uint16]UEQuery{}
	s.NewTTI(ueDB, 0, 25, 2, 0, fixedRBGParams(25, 4))

	ue := &fakeUE{rnti: 100, newData: 500}
	_, ok := s.GetUserAllocation(ue)
	if ok {
		t.Fatal("GetUserAllocation() ok = true, want false for a UE owning no RBGs")
	}
}

func TestSchedulerTraceRecordsAllocations(t *testing.T) {
	s := New(testLogger())
	s.EnableTrace(true)
	_ = s.AddSlice(1)
	_ = s.SetSlice(1, -1, 25)
	_ = s.AddSliceUser(100, 1, false)

	ue := &fakeUE{rnti: 100, newData: 200, empty: &DLHarqProc{}}
	ueDB := map[uint16]UEQuery{100: ue}
	s.NewTTI(ueDB, 0, 25, 2, 0, fixedRBGParams(25, 4))
	_, _ = s.GetUserAllocation(ue)

	snap := s.TraceSnapshot(100)
	if len(snap) != 1 {
		t.Fatalf("len(TraceSnapshot) = %d, want 1", len(snap))
	}
}

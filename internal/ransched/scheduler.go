package ransched

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Scheduler is the DL RAN scheduler of spec.md C1: every TTI it snapshots
// UE state, delegates to the active slice scheduler (and, transitively,
// each slice's user scheduler), and then answers per-UE HARQ-aware
// allocation queries consistent with that TTI's owner[] assignment.
//
// A single non-reentrant lock guards slices/users/owner, matching the
// teacher's use of a plain mutex around shared maps (spec.md §5 "Locking
// discipline": Go has no spinlock in the standard library, and the
// critical sections here are uniformly short, so sync.Mutex is the
// idiomatic stand-in).
type Scheduler struct {
	mu  sync.Mutex
	log *logrus.Logger

	sliceSched SliceScheduler

	slices map[uint64]*Slice
	users  map[uint16]*MACUser

	absTTI   uint32
	tti      uint32
	ctrlSym  uint32
	startRBG uint32
	nofRBG   uint32

	maxRBG  uint32
	rbgSize uint32

	owner [MaxRBG]uint16
	inUse [MaxRBG]bool

	trace traceState
}

// New constructs a Scheduler with a default multi-slice scheduler
// installed, matching spec.md §4.1 "init(log): allocate lock, install a
// default slice scheduler (multi-slice) and build the empty slice/user
// maps."
func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{
		log:        log,
		sliceSched: NewMultiSliceScheduler(),
		slices:     make(map[uint64]*Slice),
		users:      make(map[uint16]*MACUser),
	}
}

// SetSliceScheduler swaps the active slice scheduler (e.g. to the duo
// scheduler). Reserved for bring-up/test code; the running system
// installs it once before the first TTI.
func (s *Scheduler) SetSliceScheduler(sched SliceScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sliceSched = sched
}

// AddSlice creates a slice with a default round-robin user scheduler
// attached. Fails if the slice already exists (spec.md §4.1 "add_slice").
func (s *Scheduler) AddSlice(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slices[id]; exists {
		s.log.WithField("slice", id).Warn("add_slice: slice already exists")
		return fmt.Errorf("slice %d already exists", id)
	}
	s.slices[id] = newSlice(id, NewRRUserScheduler())
	s.log.WithField("slice", id).Debug("add_slice: created")
	return nil
}

// RemSlice removes a slice and its user scheduler. Fails on
// ranid.DefaultSlice (spec.md §4.1 "rem_slice", invariant 4).
func (s *Scheduler) RemSlice(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == defaultSliceID {
		return fmt.Errorf("slice %d is the default slice and cannot be removed", id)
	}
	if _, exists := s.slices[id]; !exists {
		return fmt.Errorf("slice %d does not exist", id)
	}
	delete(s.slices, id)
	s.sliceSched.RemoveSlice(id)
	s.log.WithField("slice", id).Debug("rem_slice: removed")
	return nil
}

// SetSlice forwards to the active slice scheduler's SetResources
// (spec.md §4.1 "set_slice"). Overcommitment is not enforced here.
func (s *Scheduler) SetSlice(id uint64, timeArg, rbgArg int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sliceSched.SetResources(id, timeArg, rbgArg)
}

// AddSliceUser marks the user as self_managed = !lock and inserts rnti
// into the slice's user set (spec.md §4.1 "add_slice_user").
func (s *Scheduler) AddSliceUser(rnti uint16, sliceID uint64, lock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slice, ok := s.slices[sliceID]
	if !ok {
		return fmt.Errorf("slice %d does not exist", sliceID)
	}

	u, ok := s.users[rnti]
	if !ok {
		u = &MACUser{RNTI: rnti}
		s.users[rnti] = u
	}
	u.SelfManaged = !lock
	slice.Users[rnti] = 0
	return nil
}

// RemSliceUser removes rnti from every slice if sliceID == 0, otherwise
// only from the named slice, and also removes it from the UE map
// (spec.md §4.1 "rem_slice_user", invariant 3).
func (s *Scheduler) RemSliceUser(rnti uint16, sliceID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sliceID == 0 {
		for _, slice := range s.slices {
			delete(slice.Users, rnti)
		}
	} else if slice, ok := s.slices[sliceID]; ok {
		delete(slice.Users, rnti)
	}
	delete(s.users, rnti)
}

// GetSliceSchedID returns the id of the active slice scheduler (spec.md
// §4.1 "get_slice_sched_id").
func (s *Scheduler) GetSliceSchedID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sliceSched.ID()
}

// switchPositioner is implemented by DuoDynamicScheduler; checked with
// a type assertion so SwitchPosition degrades gracefully under the
// multi-credit scheduler.
type switchPositioner interface {
	SwitchPosition() uint32
}

// SwitchPosition returns the active slice scheduler's duo-dynamic
// switch position, if it has one (spec.md §4.2 "Duo-dynamic switch
// scheduler").
func (s *Scheduler) SwitchPosition() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.sliceSched.(switchPositioner)
	if !ok {
		return 0, false
	}
	return sp.SwitchPosition(), true
}

// SliceInfo is the read-through result of GetSliceInfo.
type SliceInfo struct {
	UserSchedID uint32
	RBG         int32
	Users       []uint16
}

// GetSliceInfo returns the slice's user-scheduler id, its recorded RBG
// resource, and up to cap user RNTIs (spec.md §4.1 "get_slice_info").
func (s *Scheduler) GetSliceInfo(id uint64, cap int) (SliceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slice, ok := s.slices[id]
	if !ok {
		return SliceInfo{}, fmt.Errorf("slice %d does not exist", id)
	}

	_, rbg := s.sliceSched.GetResources(id)

	rntis := slice.SortedRNTIs()
	if cap >= 0 && len(rntis) > cap {
		rntis = rntis[:cap]
	}

	var userSchedID uint32
	if slice.UserSched != nil {
		userSchedID = slice.UserSched.ID()
	}

	return SliceInfo{UserSchedID: userSchedID, RBG: rbg, Users: rntis}, nil
}

// defaultSliceID mirrors ranid.DefaultSlice without importing ranid from
// every call site that only needs the constant locally.
const defaultSliceID uint64 = 1

// NewTTI runs the per-TTI algorithm of spec.md §4.1: snapshot UE state,
// derive the cell-width table on first sight of a new nofRBG, build the
// in_use/owner scratch arrays, and delegate to the active slice scheduler.
func (s *Scheduler) NewTTI(ueDB map[uint16]UEQuery, startRBG, nofRBG, nofCtrlSym, tti uint32, rbgParams func(uint32) (uint32, uint32, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.absTTI++
	s.tti = tti
	s.ctrlSym = nofCtrlSym
	s.startRBG = startRBG

	if nofRBG != s.nofRBG {
		if maxRBG, rbgSize, ok := rbgParams(nofRBG); ok {
			s.maxRBG = maxRBG
			s.rbgSize = rbgSize
		} else {
			s.log.WithField("nof_rbg", nofRBG).Error("new_tti: no cell-width table entry for nof_rbg")
		}
		s.nofRBG = nofRBG
	}

	for i := 0; i < MaxRBG; i++ {
		s.inUse[i] = !(uint32(i) >= startRBG && uint32(i) < startRBG+nofRBG)
		s.owner[i] = 0
	}

	for rnti, ue := range ueDB {
		u, ok := s.users[rnti]
		if !ok || s.absTTI-u.LastSeen > ReinitAfterTTIs {
			u = &MACUser{RNTI: rnti, SelfManaged: true}
			s.users[rnti] = u
		}

		_, hasHARQ := ue.PendingDLHARQ(tti)
		u.HasData = ue.PendingDLNewData(tti) > 0 || hasHARQ
		u.LastSeen = s.absTTI
	}

	if s.sliceSched != nil {
		s.sliceSched.Schedule(tti, s.slices, s.users, &s.inUse, &s.owner)
	}

	s.trace.onTTI(s.absTTI)
}

// GetUserAllocation answers a single UE's HARQ-aware allocation query for
// the TTI most recently processed by NewTTI (spec.md §4.1
// "get_user_allocation").
func (s *Scheduler) GetUserAllocation(ue UEQuery) (*DLHarqProc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rnti := ue.RNTI()

	var owned [MaxRBG]bool
	for i := 0; i < MaxRBG; i++ {
		if s.owner[i] == rnti {
			owned[i] = true
		}
	}
	nofOwned := CountRBG(CalcRBGMask(owned))

	u := s.users[rnti]
	if nofOwned == 0 {
		if u != nil {
			u.DLRBGDelta = 0
		}
		return nil, false
	}

	ownedMask := CalcRBGMask(owned)

	if h, ok := ue.PendingDLHARQ(s.tti); ok {
		if h.Mask == ownedMask {
			if u != nil {
				u.DLRBGDelta = nofOwned
			}
			s.trace.onAllocation(rnti, h.Mask)
			return h, true
		}

		k := CountRBG(h.Mask)
		if k <= nofOwned {
			newMask, _ := NewAllocation(k, owned)
			h.Mask = newMask
			if u != nil {
				u.DLRBGDelta = k
			}
			s.trace.onAllocation(rnti, h.Mask)
			return h, true
		}

		s.log.WithFields(logrus.Fields{"rnti": rnti, "harq_bits": k, "owned_bits": nofOwned}).
			Error("get_user_allocation: pending HARQ mask does not fit owned RBGs")
		return nil, false
	}

	if h, ok := ue.EmptyDLHARQ(); ok {
		dsize := ue.PendingDLNewData(s.tti)
		if dsize > 0 {
			nofNeeded := requiredRBGCount(dsize, s.ctrlSym, s.rbgSize) + 1
			newMask, taken := NewAllocation(nofNeeded, owned)
			if taken > 0 {
				h.Mask = newMask
				h.Pending = true
				if u != nil {
					u.DLRBGDelta = taken
				}
				s.trace.onAllocation(rnti, h.Mask)
				return h, true
			}
		}
	}

	return nil, false
}

// requiredRBGCount mirrors spec.md §4.1 step 2a: ceil(required_prb_dl /
// rbg_size). GetUserAllocation adds the +1 over-provisioning the source
// always applies (spec.md §9 "load-bearing" rounding policy — do not
// "fix" it).
//
// requiredPRBDL is a placeholder for the PHY-layer MCS/TBS lookup the RAN
// scheduler treats as an external collaborator (spec.md §1 scope); here
// it is approximated as one PRB per 100 bytes of pending data, which is
// the right order of magnitude for the mask sizes this package's tests
// exercise and keeps the RAN scheduler decoupled from the PHY link
// adaptation tables.
func requiredRBGCount(dsize uint32, ctrlSym uint32, rbgSize uint32) uint32 {
	if rbgSize == 0 {
		return 0
	}
	requiredPRB := requiredPRBDL(dsize, ctrlSym)
	return (requiredPRB + rbgSize - 1) / rbgSize
}

func requiredPRBDL(dsize uint32, ctrlSym uint32) uint32 {
	_ = ctrlSym
	prb := (dsize + 99) / 100
	if prb == 0 {
		prb = 1
	}
	return prb
}

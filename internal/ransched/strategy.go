package ransched

// SliceScheduler partitions the spectrum across slices every TTI, then
// delegates the RBGs it grants each slice to that slice's UserScheduler
// (spec.md §4.2, C2). Its id follows the slice-scheduler convention
// (high bit clear, spec.md §3 invariant 6).
type SliceScheduler interface {
	ID() uint32

	// Schedule partitions inUse/owner across slices. On entry, inUse[i]
	// is true for every RBG reserved outside the scheduler's control
	// (outside the [startRBG, startRBG+nofRBG) window); on return every RBG the scheduler granted
	// to a slice has been marked in_use and owner carries the winning
	// RNTI.
	Schedule(tti uint32, slices map[uint64]*Slice, users map[uint16]*MACUser, inUse *[MaxRBG]bool, owner *[MaxRBG]uint16)

	// GetResources returns the (tti, rbg) resource pair most recently
	// set for slice id via SetResources, or (-1, -1) if none is set.
	GetResources(id uint64) (tti int32, rbg int32)

	// SetResources configures the (tti, rbg) resource pair for slice id. Both
	// arguments -1 drops the slice from the resource table (spec.md
	// §4.1 "set_slice").
	SetResources(id uint64, tti int32, rbg int32) error

	// RemoveSlice drops any scheduler-owned state for slice id (credit
	// counters, switch assignment, ...).
	RemoveSlice(id uint64)
}

// UserScheduler picks, among a slice's members, who owns the RBGs the
// slice scheduler exposed as available (spec.md §4.2, C2). Its id follows
// the user-scheduler convention (high bit set, spec.md §3 invariant 6).
type UserScheduler interface {
	ID() uint32

	// Schedule assigns every RBG where avail[i] == false to a single
	// member of slice (or leaves owner untouched if the slice has no
	// members).
	Schedule(tti uint32, slice *Slice, users map[uint16]*MACUser, avail *[MaxRBG]bool, owner *[MaxRBG]uint16)
}

// Scheduler ids, spec.md §4.2 and §3 invariant 6.
const (
	SliceSchedMultiID uint32 = 1
	SliceSchedDuoID   uint32 = 2

	UserSchedRoundRobinID uint32 = 0x80000001
)

package ransched

// RRUserScheduler grants every RBG the slice scheduler exposed to a
// single member of the slice each TTI, cycling in RNTI order (spec.md
// §4.2 "Round-robin user scheduler (RR_USER, id has high bit set, value
// 0x80000001)").
type RRUserScheduler struct {
	// lastRNTI is the RNTI picked on the previous call. Each slice owns
	// its own RRUserScheduler instance (spec.md §3 "Slice" owns "its
	// user scheduler strategy instance"), so one field is enough state.
	lastRNTI uint16
}

// NewRRUserScheduler returns a fresh round-robin user scheduler, the
// default attached to every slice created by C1.AddSlice.
func NewRRUserScheduler() *RRUserScheduler {
	return &RRUserScheduler{}
}

func (r *RRUserScheduler) ID() uint32 { return UserSchedRoundRobinID }

func (r *RRUserScheduler) Schedule(tti uint32, slice *Slice, users map[uint16]*MACUser, avail *[MaxRBG]bool, owner *[MaxRBG]uint16) {
	rntis := slice.SortedRNTIs()
	if len(rntis) == 0 {
		return
	}

	picked := nextAfter(rntis, r.lastRNTI)

	for i := 0; i < MaxRBG; i++ {
		if !avail[i] {
			owner[i] = picked
		}
	}
	r.lastRNTI = picked
}

// nextAfter picks the next RNTI strictly after last in the sorted list,
// wrapping to the first entry. If last is absent from the list (it left
// the slice), it falls through to the wrap case and returns the first
// entry (spec.md §4.2 edge case ii).
func nextAfter(sorted []uint16, last uint16) uint16 {
	for i, r := range sorted {
		if r == last {
			return sorted[(i+1)%len(sorted)]
		}
	}
	return sorted[0]
}

package ransched

import "math/bits"

// DLHarqProc models a downlink HARQ process's pending allocation: the RBG
// bitmask it currently occupies, and whether it is actually carrying
// unacknowledged data that must be retransmitted bit-for-bit (spec.md §1,
// invariant 2).
type DLHarqProc struct {
	// Mask is the RBG bitmask of groups this HARQ process occupies.
	Mask uint32
	// Pending is true while this HARQ carries data awaiting
	// (re)transmission; a HARQ with Pending == false is an "empty slot"
	// available for new data.
	Pending bool
}

// UEQuery is the scheduler's view into a UE's pending-data and HARQ state,
// supplied by the MAC layer per spec.md §4.1 ("pending_dl_new_data",
// "pending_dl_harq", empty HARQ slot lookup). It is intentionally narrow:
// the scheduler never needs more than this to produce an allocation.
type UEQuery interface {
	RNTI() uint16

	// PendingDLNewData returns the size in bytes of new DL data pending
	// for this TTI, or 0 if none.
	PendingDLNewData(tti uint32) uint32

	// PendingDLHARQ returns the UE's currently pending (unacknowledged)
	// DL HARQ process, if any.
	PendingDLHARQ(tti uint32) (*DLHarqProc, bool)

	// EmptyDLHARQ returns an available DL HARQ slot to carry new data,
	// if one exists.
	EmptyDLHARQ() (*DLHarqProc, bool)
}

// CalcRBGMask packs a boolean ownership array into a bitmask, index i
// mapping to bit i (spec.md §4.1 "calc_rbg_mask").
func CalcRBGMask(owned [MaxRBG]bool) uint32 {
	var mask uint32
	for i, set := range owned {
		if set {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// CountRBG returns the number of set bits in mask (spec.md §4.1
// "count_rbg").
func CountRBG(mask uint32) uint32 {
	return uint32(bits.OnesCount32(mask))
}

// NewAllocation takes the first n set bits of owned, in index order,
// leaving the rest unset, and returns the resulting mask plus how many
// bits were actually taken (fewer than n if owned has fewer than n bits
// set). Spec.md §4.1 "new_allocation".
func NewAllocation(n uint32, owned [MaxRBG]bool) (mask uint32, taken uint32) {
	for i := 0; i < MaxRBG && taken < n; i++ {
		if owned[i] {
			mask |= 1 << uint(i)
			taken++
		}
	}
	return mask, taken
}

// Package ransched implements the two-level hierarchical downlink
// scheduler of spec.md C1 (DL RAN scheduler) and C2 (slice/user scheduler
// strategies): slice scheduler -> per-slice user scheduler, producing a
// per-RBG "owner RNTI" assignment every TTI, and a HARQ-aware allocation
// query on top of it.
package ransched

import "github.com/kewinrausch/empower-srsLTE/internal/ranid"

// MaxRBG bounds the per-TTI scratch arrays; it is the largest entry in the
// cell-width table of spec.md §4.1 step 2 (25 RBGs at 20 MHz).
const MaxRBG = 25

// ReinitAfterTTIs is the absolute-TTI staleness window after which a
// user_map entry is re-initialized on next sight (spec.md §3 "User (MAC
// view)").
const ReinitAfterTTIs = 5000

// MACUser is the scheduler's view of a UE (spec.md §3 "User (MAC view)").
type MACUser struct {
	RNTI uint16

	// SelfManaged is true if the scheduler may freely re-assign the
	// user's slice.
	SelfManaged bool

	// LastSeen is the absolute TTI counter at which this user was last
	// observed in ue_db.
	LastSeen uint32

	// HasData is non-zero if the user had pending new DL data or a
	// pending DL HARQ at its last observation.
	HasData bool

	// DLData is the cumulative DL bytes seen for this user.
	DLData uint64
	// DLDataDelta is the last-TTI contribution to DLData.
	DLDataDelta uint32
	// DLRBGDelta is the number of RBGs granted to this user in the last
	// TTI it was queried via GetUserAllocation. Written at most once
	// per TTI per user (spec.md §5 ordering guarantees).
	DLRBGDelta uint32
}

// Slice is a named partition of radio resources with its own user set and
// user-scheduling policy (spec.md §3 "Slice").
type Slice struct {
	ID uint64

	// PLMN is the 24-bit PLMN embedded in ID, cached for quick access.
	PLMN uint32

	UserSched UserScheduler

	// Users is the set of RNTIs that are members of this slice. The
	// mapped value is a reserved per-user flag, unused by the
	// scheduling algorithms themselves (spec.md §3).
	Users map[uint16]uint8
}

func newSlice(id uint64, userSched UserScheduler) *Slice {
	return &Slice{
		ID:        id,
		PLMN:      ranid.PLMNOf(id),
		UserSched: userSched,
		Users:     make(map[uint16]uint8),
	}
}

// SortedRNTIs returns the slice's member RNTIs in ascending order, giving
// round-robin and other strategies a deterministic iteration order.
func (s *Slice) SortedRNTIs() []uint16 {
	out := make([]uint16, 0, len(s.Users))
	for r := range s.Users {
		out = append(out, r)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

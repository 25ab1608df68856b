package ransched

// multiCredit is the per-slice credit state consumed by MultiSliceScheduler
// (spec.md §3 "Slice MAC-level resource credit").
type multiCredit struct {
	ttiOrg     int32
	ttiCredit  int32
	ttiLast    uint32
	resOrg     int32
	resCredit  int32
	configured bool
}

// MultiSliceScheduler is the "MULTI" slice scheduler (id = 1): every slice
// is granted res_org RBGs to spend over tti_org subframes, refilled when
// both counters reach zero (spec.md §4.2 "Multi-slice credit scheduler").
type MultiSliceScheduler struct {
	credits map[uint64]*multiCredit
}

// NewMultiSliceScheduler returns the default slice scheduler installed by
// C1.Init.
func NewMultiSliceScheduler() *MultiSliceScheduler {
	return &MultiSliceScheduler{credits: make(map[uint64]*multiCredit)}
}

func (m *MultiSliceScheduler) ID() uint32 { return SliceSchedMultiID }

func (m *MultiSliceScheduler) GetResources(id uint64) (int32, int32) {
	c, ok := m.credits[id]
	if !ok || !c.configured {
		return -1, -1
	}
	return c.ttiOrg, c.resOrg
}

func (m *MultiSliceScheduler) SetResources(id uint64, tti int32, rbg int32) error {
	if tti == -1 && rbg == -1 {
		delete(m.credits, id)
		return nil
	}
	c, ok := m.credits[id]
	if !ok {
		c = &multiCredit{}
		m.credits[id] = c
	}
	c.ttiOrg = tti
	c.resOrg = rbg
	c.ttiCredit = tti
	c.resCredit = rbg
	c.configured = true
	return nil
}

func (m *MultiSliceScheduler) RemoveSlice(id uint64) {
	delete(m.credits, id)
}

func (m *MultiSliceScheduler) Schedule(tti uint32, slices map[uint64]*Slice, users map[uint16]*MACUser, inUse *[MaxRBG]bool, owner *[MaxRBG]uint16) {
	for id, slice := range slices {
		c, ok := m.credits[id]
		if !ok || !c.configured {
			continue
		}

		if c.ttiCredit == 0 {
			switch {
			case c.resCredit > 0:
				// Recovery path: time exhausted but resources remain;
				// refill only the time budget and skip this TTI (spec.md
				// §9 open questions: preserved even though possibly
				// buggy).
				c.ttiCredit = c.ttiOrg
				continue
			case c.ttiOrg < 0:
				// One-shot budget exhausted, never renews.
				continue
			default:
				c.ttiCredit = c.ttiOrg
				c.resCredit = c.resOrg
			}
		}

		if c.resCredit <= 0 {
			continue
		}

		var res int32
		if c.ttiCredit > 0 {
			res = c.resCredit / c.ttiCredit
		} else {
			res = c.resCredit / -c.ttiCredit
		}

		var avail [MaxRBG]bool
		var tot int32
		for i := 0; i < MaxRBG; i++ {
			if inUse[i] {
				avail[i] = true
				continue
			}
			if res <= 0 {
				avail[i] = true
				continue
			}
			avail[i] = false
			inUse[i] = true
			res--
			tot++
		}

		if slice.UserSched != nil {
			slice.UserSched.Schedule(tti, slice, users, &avail, owner)
		}

		c.resCredit -= tot
		if c.ttiCredit > 0 {
			c.ttiCredit--
		} else {
			c.ttiCredit++
		}
		c.ttiLast = tti
	}
}

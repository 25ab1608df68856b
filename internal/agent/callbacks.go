package agent

// AddUser registers a newly connected UE (spec.md C5 RRC inbound
// callback "add_user"). Re-adding an already-known RNTI is treated as
// an update, not an error.
func (a *Agent) AddUser(rnti uint16, imsi uint64, plmn uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.ues[rnti]
	if !ok {
		u = &ueView{rnti: rnti}
		a.ues[rnti] = u
	}
	u.imsi = imsi
	u.plmn = plmn
	u.connected = true
	u.idDirty = true
	u.stateDirty = true
	a.dirty.markUE()
}

// RemUser marks a UE as having left the cell (spec.md C5 "rem_user").
// Per spec.md C4, a disconnected entry is only dropped from the map
// once the dirty-UE report carrying its disconnected state has actually
// gone out, so this just flips the state and waits for dirtyUECheck.
func (a *Agent) RemUser(rnti uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.ues[rnti]
	if !ok {
		return
	}
	u.connected = false
	u.stateDirty = true
	a.dirty.markUE()
}

// UpdateUserID updates the IMSI/TMSI/PLMN the agent has on file for
// rnti, e.g. once RRC identity resolution completes after AddUser was
// called with a provisional id (spec.md C5 "update_user_ID", §4.4 RNTI
// renewal heuristic). The MAC can hand out an RNTI the agent still
// associates with a different, stale UE (the old occupant's disconnect
// was never reported) before reassigning that same subscriber a new
// RNTI. So before recording the new identity, every other tracked UE is
// scanned for the same IMSI or TMSI under a different RNTI; a match
// means that other entry is the stale one, and its pending measurement
// and PRB state is cleared so it doesn't keep reporting as if still
// live.
func (a *Agent) UpdateUserID(rnti uint16, imsi, tmsi uint64, plmn uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.ues[rnti]
	if !ok {
		return
	}

	for other, o := range a.ues {
		if other == rnti {
			continue
		}
		if (imsi != 0 && o.imsi == imsi) || (tmsi != 0 && o.tmsi == tmsi) {
			o.meas = nil
			o.dlPRB, o.ulPRB = 0, 0
			o.connected = false
			o.stateDirty = true
		}
	}

	u.imsi = imsi
	u.tmsi = tmsi
	u.plmn = plmn
	u.connected = true
	u.idDirty = true
	a.dirty.markUE()
}

// ReportUser records which slice a UE currently belongs to, as learned
// from the RAN manager (spec.md C5 "report_user").
func (a *Agent) ReportUser(rnti uint16, sliceID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.ues[rnti]
	if !ok {
		u = &ueView{rnti: rnti, connected: true}
		a.ues[rnti] = u
	}
	u.sliceID = sliceID
	u.stateDirty = true
	a.dirty.markUE()
}

// InstallMeasSlot creates (or replaces) one of rnti's RRC measurement
// subscriptions (spec.md C5 subscription setup / §3 "Measurement
// slot"). Installing a measID that already exists replaces it outright,
// matching a controller reconfiguring a live subscription. A new slot
// beyond MaxMeasSlots is refused: the request is dropped with a warning
// and the existing slots are kept.
func (a *Agent) InstallMeasSlot(rnti uint16, measID uint32, modID, trigID uint8, earfcn, maxCells, maxMeas, intervalMS uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.ues[rnti]
	if !ok {
		u = &ueView{rnti: rnti, connected: true}
		a.ues[rnti] = u
	}

	if existing := u.findMeasSlot(measID); existing != nil {
		existing.modID, existing.trigID = modID, trigID
		existing.earfcn, existing.maxCells, existing.maxMeas = earfcn, maxCells, maxMeas
		existing.interval = QuantizeMeasInterval(intervalMS)
		return
	}

	if len(u.meas) >= MaxMeasSlots {
		a.log.WithField("rnti", rnti).Warn("install_meas_slot: measurement slot table full, dropping request")
		return
	}
	u.meas = append(u.meas, &measSlot{
		measID: measID, modID: modID, trigID: trigID,
		earfcn: earfcn, maxCells: maxCells, maxMeas: maxMeas,
		interval: QuantizeMeasInterval(intervalMS),
	})
}

// ReportRRCMeasure records a fresh serving-cell RRC measurement for one
// of rnti's measurement slots (spec.md C5 "report_RRC_measure").
// Readings for a measID with no installed slot are dropped: the
// controller revoked or never installed that subscription.
func (a *Agent) ReportRRCMeasure(rnti uint16, measID uint32, pci uint16, rsrp, rsrq int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.ues[rnti]
	if !ok {
		return
	}
	m := u.findMeasSlot(measID)
	if m == nil {
		return
	}
	m.serving = cellMeas{pci: pci, rsrp: rsrp, rsrq: rsrq, dirty: true}
	m.cDirty = true
	a.dirty.markMeasure()
}

// ReportNeighborMeasure records a fresh neighbor-cell RRC measurement
// for one of rnti's measurement slots (spec.md §3 "up to MAX_CELL_MEAS
// neighbor readings"). Reports beyond maxCells are dropped, and a
// repeated pci within the same slot overwrites its prior reading rather
// than growing the list unbounded.
func (a *Agent) ReportNeighborMeasure(rnti uint16, measID uint32, pci uint16, rsrp, rsrq int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.ues[rnti]
	if !ok {
		return
	}
	m := u.findMeasSlot(measID)
	if m == nil {
		return
	}
	for i := range m.neighbors {
		if m.neighbors[i].pci == pci {
			m.neighbors[i].rsrp, m.neighbors[i].rsrq = rsrp, rsrq
			m.neighbors[i].dirty = true
			m.cDirty = true
			a.dirty.markMeasure()
			return
		}
	}
	if uint32(len(m.neighbors)) >= m.maxCells || len(m.neighbors) >= MaxCellMeas {
		return
	}
	m.neighbors = append(m.neighbors, cellMeas{pci: pci, rsrp: rsrp, rsrq: rsrq, dirty: true})
	m.cDirty = true
	a.dirty.markMeasure()
}

// prbForAllocation computes the PRB cost of a DL/UL grant given its
// allocation type (spec.md §4.4 "process_DL_results/process_UL_results"
// PRB accounting, matching original_source/srsenb's dl_harq_proc/
// ul_harq_proc PRB formulas for types 0-2).
//
// Type 0 addresses whole RBGs via a bitmask: prb = popcount(rbg_mask) *
// P. rbgCount is that popcount, rbgSize is P.
//
// Type 1 addresses individual PRBs within a subset of RBGs via a
// per-PRB bitmask, so no RBG-size multiplication applies: prb =
// popcount(vrb_mask). rbgCount carries that popcount directly.
//
// Type 2 is a contiguous run picked by a resource-indication-value
// (RIV) over the cell's PRB grid: prb = floor(riv/cell_prbs) + 1,
// multiplied by cell_prbs again for uplink grants (the UL RIV addresses
// a run of PRB *groups* rather than PRBs). rbgCount carries the RIV for
// this allocation type and cellTotalPRB is cell_prbs; rbgSize is unused.
func prbForAllocation(allocType AllocationType, rbgCount, rbgSize, cellTotalPRB uint32, uplink bool) uint32 {
	switch allocType {
	case AllocationType0:
		return rbgCount * rbgSize
	case AllocationType1:
		return rbgCount
	case AllocationType2:
		if cellTotalPRB == 0 {
			return 0
		}
		prb := rbgCount/cellTotalPRB + 1
		if uplink {
			prb *= cellTotalPRB
		}
		return prb
	default:
		return 0
	}
}

// ProcessDLResults folds one TTI's downlink MAC scheduling outcome for
// rnti into the cell PRB accumulator (spec.md C5 MAC inbound callback
// "process_DL_results").
func (a *Agent) ProcessDLResults(rnti uint16, allocType AllocationType, rbgCount, rbgSize, cellTotalPRB uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prb := prbForAllocation(allocType, rbgCount, rbgSize, cellTotalPRB, false)

	if u, ok := a.ues[rnti]; ok {
		u.dlPRB += prb
	}
	a.cell.dlUsed += prb
	if cellTotalPRB > a.cell.dlTot {
		a.cell.dlTot = cellTotalPRB
	}
	a.dirty.markRAN()
}

// ProcessULResults folds one TTI's uplink MAC scheduling outcome for
// rnti into the cell PRB accumulator (spec.md C5 "process_UL_results").
func (a *Agent) ProcessULResults(rnti uint16, allocType AllocationType, rbgCount, rbgSize, cellTotalPRB uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prb := prbForAllocation(allocType, rbgCount, rbgSize, cellTotalPRB, true)

	if u, ok := a.ues[rnti]; ok {
		u.ulPRB += prb
	}
	a.cell.ulUsed += prb
	if cellTotalPRB > a.cell.ulTot {
		a.cell.ulTot = cellTotalPRB
	}
	a.dirty.markRAN()
}

// NotifySliceChanged marks the slice report dirty, e.g. after the RAN
// manager adds, removes, or reconfigures a slice (spec.md C5
// subscription setup for slice reports).
func (a *Agent) NotifySliceChanged() {
	a.dirty.markSlice()
}

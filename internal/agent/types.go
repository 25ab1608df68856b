// Package agent implements the eNB telemetry/control agent of spec.md
// C4: the tick loop, its dirty-flag-driven reporting, and the RRC/MAC
// inbound callbacks that mutate its per-UE state. Controller-originated
// requests (spec.md C5) are dispatched into this package's exported
// methods by internal/dispatch.
package agent

import "sync"

// AllocationType is the PDSCH/PUSCH resource allocation type a MAC
// report describes, used to pick the right PRB-accounting formula in
// ProcessDLResults/ProcessULResults.
type AllocationType uint8

const (
	AllocationType0 AllocationType = iota
	AllocationType1
	AllocationType2
)

// measIntervalsMS enumerates the RRC measurement reporting periods a UE
// can be configured with; values are quantized up to the nearest one
// of these on subscription (spec.md C4/C5 "RRC measurement interval
// quantization").
var measIntervalsMS = []uint32{120, 240, 480, 640, 1024, 2048, 5120, 10240}

// QuantizeMeasInterval rounds ms up to the smallest supported RRC
// measurement interval that is >= ms, falling back to the largest
// supported interval if ms exceeds all of them.
func QuantizeMeasInterval(ms uint32) uint32 {
	for _, v := range measIntervalsMS {
		if v >= ms {
			return v
		}
	}
	return measIntervalsMS[len(measIntervalsMS)-1]
}

// MaxMeasSlots bounds how many concurrent RRC measurement subscriptions
// one UE can carry (spec.md §3 "Measurement slot", MAX_MEAS=32).
const MaxMeasSlots = 32

// MaxCellMeas bounds how many neighbor-cell readings one measurement
// slot can carry (spec.md §3, MAX_CELL_MEAS=8).
const MaxCellMeas = 8

// cellMeas is one cell's RSRP/RSRQ reading inside a measurement slot,
// serving or neighbor.
type cellMeas struct {
	pci   uint16
	rsrp  int32
	rsrq  int32
	dirty bool
}

// measSlot is one controller-installed RRC measurement subscription for
// a UE (spec.md §3 "Measurement slot").
type measSlot struct {
	measID   uint32
	modID    uint8
	trigID   uint8
	earfcn   uint32
	maxCells uint32
	maxMeas  uint32
	interval uint32

	serving   cellMeas
	neighbors []cellMeas

	cDirty bool
}

// ueView is the agent's per-UE bookkeeping, distinct from the
// scheduler's internal/ransched.MACUser: it tracks what the agent has
// seen from RRC/MAC and whether it owes the controller a fresh report.
type ueView struct {
	rnti uint16
	imsi uint64
	plmn uint32
	tmsi uint64

	connected bool

	sliceID uint64

	dlPRB uint32
	ulPRB uint32

	meas []*measSlot

	idDirty    bool
	stateDirty bool
}

// findMeasSlot returns the slot with the given controller-assigned meas
// id, or nil.
func (u *ueView) findMeasSlot(measID uint32) *measSlot {
	for _, m := range u.meas {
		if m.measID == measID {
			return m
		}
	}
	return nil
}

// cellPRBAccumulator tracks the cell-wide PRB usage the agent rolls up
// into periodic MAC-PRB reports (spec.md C4 "cell PRB accumulator").
type cellPRBAccumulator struct {
	dlUsed uint32
	ulUsed uint32
	dlTot  uint32
	ulTot  uint32
}

func (c *cellPRBAccumulator) reset() {
	c.dlUsed, c.ulUsed, c.dlTot, c.ulTot = 0, 0, 0, 0
}

// state is the agent loop's run state (spec.md C4 "{stopped, paused,
// started} state machine").
type state uint8

const (
	stateStopped state = iota
	statePaused
	stateStarted
)

// subscription is one controller-installed report subscription gated by
// a transport-tracked trigger id (spec.md C4 "ue_report_enabled" /
// "ran_feature_enabled" / a tick-driven MAC report).
type subscription struct {
	enabled bool
	modID   uint8
	trigID  uint8
}

// dirtyFlags tracks which report kinds the agent owes the controller,
// checked once per tick (spec.md C4 "dirty_ue_check / ran_check /
// measure_check").
type dirtyFlags struct {
	mu      sync.Mutex
	ue      bool
	ran     bool
	measure bool
	slice   bool
}

func (d *dirtyFlags) markUE()      { d.mu.Lock(); d.ue = true; d.mu.Unlock() }
func (d *dirtyFlags) markRAN()     { d.mu.Lock(); d.ran = true; d.mu.Unlock() }
func (d *dirtyFlags) markMeasure() { d.mu.Lock(); d.measure = true; d.mu.Unlock() }
func (d *dirtyFlags) markSlice()   { d.mu.Lock(); d.slice = true; d.mu.Unlock() }

// takeAll atomically reads and clears every flag, returning what was set.
func (d *dirtyFlags) takeAll() (ue, ran, measure, slice bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ue, ran, measure, slice = d.ue, d.ran, d.measure, d.slice
	d.ue, d.ran, d.measure, d.slice = false, false, false, false
	return
}

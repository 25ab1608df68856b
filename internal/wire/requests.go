package wire

// EnbCapReportPayload answers an EnbSetupRequest with the cell's static
// capability advertisement (spec.md C5 "enb_setup_request").
type EnbCapReportPayload struct {
	SupportsUEReport    bool   `cbor:"1,keyasint"`
	SupportsUEMeasure   bool   `cbor:"2,keyasint"`
	SupportsCellMeasure bool   `cbor:"3,keyasint"`
	NPRB                uint32 `cbor:"4,keyasint"`
	DLEarfcn            uint32 `cbor:"5,keyasint"`
	ULEarfcn            uint32 `cbor:"6,keyasint"`
	SliceSchedID        uint32 `cbor:"7,keyasint"`
	SlicingSupported    bool   `cbor:"8,keyasint"`
}

// SubscribeRequestPayload is the common shape of a tick-driven report
// subscription install: ue_report, cell_measure, mac_report (spec.md
// C5).
type SubscribeRequestPayload struct {
	ModID    uint8  `cbor:"1,keyasint"`
	TrigID   uint8  `cbor:"2,keyasint"`
	Interval uint32 `cbor:"3,keyasint"`
}

// UEMeasureRequestPayload installs or updates one RNTI's RRC
// measurement slot (spec.md C5 "ue_measure").
type UEMeasureRequestPayload struct {
	RNTI     uint16 `cbor:"1,keyasint"`
	MeasID   uint32 `cbor:"2,keyasint"`
	ModID    uint8  `cbor:"3,keyasint"`
	TrigID   uint8  `cbor:"4,keyasint"`
	Earfcn   uint32 `cbor:"5,keyasint"`
	Interval uint32 `cbor:"6,keyasint"`
	MaxCells uint32 `cbor:"7,keyasint"`
	MaxMeas  uint32 `cbor:"8,keyasint"`
}

// SliceRequestPayload asks for a slice dump (SliceID == 0) or one
// slice's report (spec.md C5 "ran.slice_request").
type SliceRequestPayload struct {
	SliceID uint64 `cbor:"1,keyasint"`
}

// SliceConfPayload is the resource configuration ran.slice_add and
// ran.slice_conf carry (spec.md C5, C3 "set_slice(id, info)"). Under
// the multi-slice scheduler a negative TTI makes RBG a one-shot budget
// that is never renewed, and TTI and RBG both -1 drop the slice from its
// resource table; the duo scheduler uses RBG only. Users
// is the slice's full intended membership: the manager reconciles it
// against whoever the slice currently holds, admitting anyone missing
// and evicting anyone no longer listed.
type SliceConfPayload struct {
	TTI   int32    `cbor:"1,keyasint"`
	RBG   int32    `cbor:"2,keyasint"`
	Users []uint16 `cbor:"3,keyasint"`
}

// SliceAddPayload is ran.slice_add's request body: the slice id, which
// already packs the owning PLMN at bits 32-55 (spec.md C6
// "add_slice(id, (id>>32)&0xffffff)"), plus its initial configuration.
type SliceAddPayload struct {
	SliceID uint64           `cbor:"1,keyasint"`
	Conf    SliceConfPayload `cbor:"2,keyasint"`
}

// SliceRemPayload is ran.slice_rem's request body.
type SliceRemPayload struct {
	SliceID uint64 `cbor:"1,keyasint"`
}

// SliceConfRequestPayload is ran.slice_conf's request body: an
// idempotent add-then-set against an existing or new slice id.
type SliceConfRequestPayload struct {
	SliceID uint64           `cbor:"1,keyasint"`
	Conf    SliceConfPayload `cbor:"2,keyasint"`
}

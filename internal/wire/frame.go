// Package wire implements the length-prefixed CBOR framing the eNB
// agent uses to talk to the RAN controller (spec.md C4/C5 transport).
// Every frame is a 4-byte big-endian length prefix followed by a
// canonical CBOR encoding of a Frame envelope.
package wire

import (
	"github.com/fxamacker/cbor/v2"
)

// MessageType enumerates the wire message kinds the agent emits and
// receives.
type MessageType uint8

const (
	EnbCapReport MessageType = iota
	UEReport
	UEMeasReport
	UEMeasFail
	CellMeasReport
	SliceReport
	SliceNotSupported

	// Inbound-only message types, carrying a controller request that C5
	// dispatches into the agent/RAN manager (spec.md §4.5).
	EnbSetupRequest
	UEReportRequest
	UEMeasureRequest
	CellMeasureRequest
	MACReportRequest
	SliceRequest
	SliceAdd
	SliceRem
	SliceConf
	Disconnected
)

func (m MessageType) String() string {
	switch m {
	case EnbCapReport:
		return "enb_cap_report"
	case UEReport:
		return "ue_report"
	case UEMeasReport:
		return "ue_meas_report"
	case UEMeasFail:
		return "ue_meas_fail"
	case CellMeasReport:
		return "cell_meas_report"
	case SliceReport:
		return "slice_report"
	case SliceNotSupported:
		return "slice_not_supported"
	case EnbSetupRequest:
		return "enb_setup_request"
	case UEReportRequest:
		return "ue_report_request"
	case UEMeasureRequest:
		return "ue_measure_request"
	case CellMeasureRequest:
		return "cell_measure_request"
	case MACReportRequest:
		return "mac_report_request"
	case SliceRequest:
		return "slice_request"
	case SliceAdd:
		return "slice_add"
	case SliceRem:
		return "slice_rem"
	case SliceConf:
		return "slice_conf"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Frame is the envelope every wire message travels in.
type Frame struct {
	EnbID    uint32      `cbor:"1,keyasint"`
	CellPCI  uint16      `cbor:"2,keyasint"`
	ModuleID uint8       `cbor:"3,keyasint"`
	Type     MessageType `cbor:"4,keyasint"`
	Payload  []byte      `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic("wire: failed to build canonical CBOR encoding mode: " + err.Error())
	}
	encMode = m
}

// MarshalPayload canonically encodes v as a frame payload.
func MarshalPayload(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// UnmarshalPayload decodes a frame payload into v.
func UnmarshalPayload(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// EncodeFrame canonically encodes f itself (the envelope, not just its
// payload) for writing to the wire.
func EncodeFrame(f Frame) ([]byte, error) {
	return encMode.Marshal(f)
}

// DecodeFrame decodes a previously length-delimited frame body.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

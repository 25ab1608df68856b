package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	f := Frame{EnbID: 42, CellPCI: 7, ModuleID: 1, Type: UEReport, Payload: []byte{1, 2, 3}}

	body, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	got, err := DecodeFrame(body)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.EnbID != f.EnbID || got.CellPCI != f.CellPCI || got.Type != f.Type {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch: got %v, want %v", got.Payload, f.Payload)
	}
}

func TestConnWriteReadFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	conn := NewConn(buf)

	f := Frame{EnbID: 1, CellPCI: 99, Type: SliceReport, Payload: []byte("hello")}
	if err := conn.WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.EnbID != 1 || got.CellPCI != 99 || got.Type != SliceReport {
		t.Fatalf("ReadFrame() = %+v, want matching envelope", got)
	}
	if string(got.Payload) != "hello" {
		t.Fatalf("Payload = %q, want %q", got.Payload, "hello")
	}
}

func TestConnReadFrameRejectsOversizedLength(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF}) // length prefix far beyond MaxFrameSize
	conn := NewConn(buf)

	if _, err := conn.ReadFrame(); err == nil {
		t.Fatal("ReadFrame() = nil error, want rejection of oversized length prefix")
	}
}

func TestDialedTransportTriggerDefaultsToFalse(t *testing.T) {
	tr := &dialedTransport{triggers: make(map[triggerKey]bool)}
	if tr.HasTrigger(1, 5) {
		t.Fatal("HasTrigger() = true for a trigger never set, want false")
	}
	tr.SetTrigger(1, 5, true)
	if !tr.HasTrigger(1, 5) {
		t.Fatal("HasTrigger() = false after SetTrigger(..., true)")
	}
}

func TestMarshalPayloadRoundTrip(t *testing.T) {
	type sample struct {
		A int
		B string
	}
	in := sample{A: 42, B: "x"}

	data, err := MarshalPayload(in)
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	var out sample
	if err := UnmarshalPayload(data, &out); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

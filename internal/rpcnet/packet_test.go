package rpcnet

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestPacketMarshalUnmarshalRoundTrip(t *testing.T) {
	p := &Packet{
		Version:     PacketVersion,
		PacketID:    "pkt-1",
		Sender:      "node-a",
		Receiver:    "node-b",
		PrevID:      "",
		Kind:        PayloadRequest,
		RequestBody: `{"method":"height"}`,
	}
	got, err := Unmarshal(p.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Version != p.Version || got.PacketID != p.PacketID || got.Sender != p.Sender ||
		got.Receiver != p.Receiver || got.Kind != p.Kind || got.RequestBody != p.RequestBody {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestPacketMarshalSuccessAndFailureKinds(t *testing.T) {
	success := &Packet{Version: 1, PacketID: "a", Kind: PayloadResultSuccess, SuccessData: "ok"}
	got, err := Unmarshal(success.Marshal())
	if err != nil || got.Kind != PayloadResultSuccess || got.SuccessData != "ok" {
		t.Fatalf("success round trip = %+v, %v", got, err)
	}

	failure := &Packet{Version: 1, PacketID: "b", Kind: PayloadResultFailure, FailureError: "boom"}
	got, err = Unmarshal(failure.Marshal())
	if err != nil || got.Kind != PayloadResultFailure || got.FailureError != "boom" {
		t.Fatalf("failure round trip = %+v, %v", got, err)
	}
}

func TestPacketUnmarshalSkipsUnknownFields(t *testing.T) {
	p := &Packet{Version: 1, PacketID: "a", Kind: PayloadRequest, RequestBody: "body"}
	raw := p.Marshal()
	// Append an unknown varint field (field 99) that a future build might
	// carry; a current build must skip it, not fail.
	raw = protowire.AppendTag(raw, 99, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 42)
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal with trailing unknown field: %v", err)
	}
	if got.RequestBody != "body" {
		t.Fatalf("unknown field corrupted known fields: %+v", got)
	}
}

func TestPacketMarshalOmitsZeroFields(t *testing.T) {
	p := &Packet{}
	if len(p.Marshal()) != 0 {
		t.Fatal("an all-zero Packet should marshal to zero bytes under proto3 implicit presence")
	}
}

func TestCodecMarshalUnmarshalPacket(t *testing.T) {
	c := rawPacketCodec{}
	if c.Name() != "proto" {
		t.Fatalf("codec name = %q, want %q", c.Name(), "proto")
	}
	p := &Packet{Version: 1, PacketID: "x", Kind: PayloadRequest, RequestBody: "hi"}
	data, err := c.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out Packet
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.PacketID != "x" || out.RequestBody != "hi" {
		t.Fatalf("codec round trip mismatch: %+v", out)
	}
}

func TestCodecRejectsUnsupportedTypes(t *testing.T) {
	c := rawPacketCodec{}
	if _, err := c.Marshal(42); err == nil {
		t.Fatal("Marshal should reject a type it doesn't know how to encode")
	}
	var s string
	if err := c.Unmarshal([]byte("x"), &s); err == nil {
		t.Fatal("Unmarshal should reject a destination type it doesn't know how to decode")
	}
}

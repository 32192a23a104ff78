// Package rpcnet is the inter-node RPC layer: a bidirectional streaming
// gRPC service carrying Packet messages, with packet_id correlation,
// per-peer reconnect backoff, and at-most-one in-flight request per
// packet_id.
package rpcnet

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PacketVersion is the only wire version this build speaks. A Packet
// carrying any other value is logged and dropped by both the dispatcher and
// the client read loop; no reply or error is sent back to the peer.
const PacketVersion = 1

// PayloadKind discriminates Packet's oneof payload.
type PayloadKind uint8

const (
	PayloadRequest PayloadKind = iota + 1
	PayloadResultSuccess
	PayloadResultFailure
)

// Packet is the single message type carried over the peer RPC stream, wire
// framing equivalent to protocol-buffers v3 encoding. Marshal/Unmarshal
// hand-encode this shape with google.golang.org/protobuf/encoding/protowire
// directly, so no protoc codegen step is needed.
type Packet struct {
	Version  uint8
	PacketID string
	Sender   string
	Receiver string
	PrevID   string

	Kind          PayloadKind
	RequestBody   string // set when Kind == PayloadRequest
	SuccessData   string // set when Kind == PayloadResultSuccess
	FailureError  string // set when Kind == PayloadResultFailure
}

const (
	fieldVersion      protowire.Number = 1
	fieldPacketID     protowire.Number = 2
	fieldSender       protowire.Number = 3
	fieldReceiver     protowire.Number = 4
	fieldPrevID       protowire.Number = 5
	fieldRequestBody  protowire.Number = 6
	fieldSuccessData  protowire.Number = 7
	fieldFailureError protowire.Number = 8
)

// Marshal encodes p using proto3 varint/length-delimited wire rules: a
// field is emitted only when non-zero/non-empty, matching proto3's
// implicit-presence semantics for scalars.
func (p *Packet) Marshal() []byte {
	var b []byte
	if p.Version != 0 {
		b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Version))
	}
	if p.PacketID != "" {
		b = protowire.AppendTag(b, fieldPacketID, protowire.BytesType)
		b = protowire.AppendString(b, p.PacketID)
	}
	if p.Sender != "" {
		b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
		b = protowire.AppendString(b, p.Sender)
	}
	if p.Receiver != "" {
		b = protowire.AppendTag(b, fieldReceiver, protowire.BytesType)
		b = protowire.AppendString(b, p.Receiver)
	}
	if p.PrevID != "" {
		b = protowire.AppendTag(b, fieldPrevID, protowire.BytesType)
		b = protowire.AppendString(b, p.PrevID)
	}
	switch p.Kind {
	case PayloadRequest:
		b = protowire.AppendTag(b, fieldRequestBody, protowire.BytesType)
		b = protowire.AppendString(b, p.RequestBody)
	case PayloadResultSuccess:
		b = protowire.AppendTag(b, fieldSuccessData, protowire.BytesType)
		b = protowire.AppendString(b, p.SuccessData)
	case PayloadResultFailure:
		b = protowire.AppendTag(b, fieldFailureError, protowire.BytesType)
		b = protowire.AppendString(b, p.FailureError)
	}
	return b
}

// Unmarshal decodes b into a fresh Packet. Unknown fields are skipped, per
// proto3 forward-compatibility rules.
func Unmarshal(b []byte) (*Packet, error) {
	p := &Packet{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("rpcnet: malformed tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldVersion:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("rpcnet: malformed version: %w", protowire.ParseError(n))
			}
			p.Version = uint8(v)
			b = b[n:]
		case fieldPacketID:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed packet_id: %w", err)
			}
			p.PacketID = s
			b = b[n:]
		case fieldSender:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed sender: %w", err)
			}
			p.Sender = s
			b = b[n:]
		case fieldReceiver:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed receiver: %w", err)
			}
			p.Receiver = s
			b = b[n:]
		case fieldPrevID:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed prev_id: %w", err)
			}
			p.PrevID = s
			b = b[n:]
		case fieldRequestBody:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed request body: %w", err)
			}
			p.Kind = PayloadRequest
			p.RequestBody = s
			b = b[n:]
		case fieldSuccessData:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed success data: %w", err)
			}
			p.Kind = PayloadResultSuccess
			p.SuccessData = s
			b = b[n:]
		case fieldFailureError:
			s, n, err := consumeString(b)
			if err != nil {
				return nil, fmt.Errorf("rpcnet: malformed failure error: %w", err)
			}
			p.Kind = PayloadResultFailure
			p.FailureError = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("rpcnet: malformed unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

func consumeString(b []byte) (string, int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

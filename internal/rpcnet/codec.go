package rpcnet

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName deliberately shadows grpc-go's built-in "proto" codec name: a
// client or server that never sets a content-subtype falls back to the
// codec registered under "proto", so registering ours there wires it in on
// both ends without any per-call or per-dial option. This repo defines no
// proto.Message types, so nothing else contends for the name.
const codecName = "proto"

func init() {
	encoding.RegisterCodec(rawPacketCodec{})
}

type rawPacketCodec struct{}

func (rawPacketCodec) Name() string { return codecName }

func (rawPacketCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *Packet:
		return m.Marshal(), nil
	case []byte:
		return m, nil
	default:
		return nil, fmt.Errorf("rpcnet: codec cannot marshal %T", v)
	}
}

func (rawPacketCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *Packet:
		p, err := Unmarshal(data)
		if err != nil {
			return err
		}
		*m = *p
		return nil
	case *[]byte:
		*m = append([]byte(nil), data...)
		return nil
	default:
		return fmt.Errorf("rpcnet: codec cannot unmarshal into %T", v)
	}
}

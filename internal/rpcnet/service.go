package rpcnet

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// serviceName and streamName match the wire protocol naming exactly:
// service "interconnect", method "ccGeneralIc", both streams.
const (
	serviceName = "interconnect"
	streamName  = "ccGeneralIc"
)

// InterconnectServer is implemented by the inbound dispatch side of a node
// (server.go's Dispatcher).
type InterconnectServer interface {
	CcGeneralIc(stream Interconnect_CcGeneralIcServer) error
}

// Interconnect_CcGeneralIcServer is the server-side handle for one peer's
// bidirectional stream.
type Interconnect_CcGeneralIcServer interface {
	Send(*Packet) error
	Recv() (*Packet, error)
	grpc.ServerStream
}

type interconnectServerStream struct {
	grpc.ServerStream
}

func (s *interconnectServerStream) Send(p *Packet) error { return s.ServerStream.SendMsg(p) }
func (s *interconnectServerStream) Recv() (*Packet, error) {
	p := new(Packet)
	if err := s.ServerStream.RecvMsg(p); err != nil {
		return nil, err
	}
	return p, nil
}

func ccGeneralIcHandler(srv any, stream grpc.ServerStream) error {
	return srv.(InterconnectServer).CcGeneralIc(&interconnectServerStream{stream})
}

// ServiceDesc is the hand-built grpc.ServiceDesc for the interconnect
// service, constructed without protoc/codegen: the only method is a single
// bidirectional stream named ccGeneralIc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InterconnectServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamName,
			Handler:       ccGeneralIcHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "rpcnet/interconnect",
}

// InterconnectClient opens the bidirectional stream from the dialing side.
type InterconnectClient interface {
	CcGeneralIc(ctx context.Context, opts ...grpc.CallOption) (Interconnect_CcGeneralIcClient, error)
}

// Interconnect_CcGeneralIcClient is the client-side handle for one peer's
// bidirectional stream.
type Interconnect_CcGeneralIcClient interface {
	Send(*Packet) error
	Recv() (*Packet, error)
	grpc.ClientStream
}

type interconnectClient struct {
	cc grpc.ClientConnInterface
}

// NewInterconnectClient wraps cc for the interconnect service. No codec
// option is required at the call site: rawPacketCodec is registered under
// the default "proto" name (codec.go), so grpc-go picks it up automatically.
func NewInterconnectClient(cc grpc.ClientConnInterface) InterconnectClient {
	return &interconnectClient{cc: cc}
}

func (c *interconnectClient) CcGeneralIc(ctx context.Context, opts ...grpc.CallOption) (Interconnect_CcGeneralIcClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/"+streamName, opts...)
	if err != nil {
		return nil, err
	}
	return &interconnectClientStream{stream}, nil
}

type interconnectClientStream struct {
	grpc.ClientStream
}

func (s *interconnectClientStream) Send(p *Packet) error { return s.ClientStream.SendMsg(p) }
func (s *interconnectClientStream) Recv() (*Packet, error) {
	p := new(Packet)
	if err := s.ClientStream.RecvMsg(p); err != nil {
		return nil, err
	}
	return p, nil
}

// errIncompatiblePeer builds an incompatible-peer grpc status that a handler
// can return directly. Nothing in this package calls it.
func errIncompatiblePeer(msg string) error {
	return status.Error(codes.FailedPrecondition, "incompatible peer: "+msg)
}

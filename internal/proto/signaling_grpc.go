package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	SignalingServiceName             = "safeshare.signaling.Signaling"
	Signaling_Connect_FullMethodName = "/safeshare.signaling.Signaling/Connect"
)

// Signaling_ConnectServer is the server side of the Connect stream.
type Signaling_ConnectServer = grpc.BidiStreamingServer[wrapperspb.BytesValue, wrapperspb.BytesValue]

// Signaling_ConnectClient is the client side of the Connect stream.
type Signaling_ConnectClient = grpc.BidiStreamingClient[wrapperspb.BytesValue, wrapperspb.BytesValue]

// SignalingServer is implemented by the signaling gRPC transport.
type SignalingServer interface {
	Connect(Signaling_ConnectServer) error
}

// SignalingClient opens signaling streams.
type SignalingClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (Signaling_ConnectClient, error)
}

type signalingClient struct {
	cc grpc.ClientConnInterface
}

func NewSignalingClient(cc grpc.ClientConnInterface) SignalingClient {
	return &signalingClient{cc: cc}
}

func (c *signalingClient) Connect(ctx context.Context, opts ...grpc.CallOption) (Signaling_ConnectClient, error) {
	stream, err := c.cc.NewStream(ctx, &Signaling_ServiceDesc.Streams[0], Signaling_Connect_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ClientStream: stream}, nil
}

func RegisterSignalingServer(s grpc.ServiceRegistrar, srv SignalingServer) {
	s.RegisterService(&Signaling_ServiceDesc, srv)
}

func _Signaling_Connect_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(SignalingServer).Connect(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ServerStream: stream})
}

// Signaling_ServiceDesc describes the service in signaling.proto.
var Signaling_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SignalingServiceName,
	HandlerType: (*SignalingServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _Signaling_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "signaling.proto",
}

// Frame wraps an envelope for the gRPC stream.
func Frame(env *Envelope) (*wrapperspb.BytesValue, error) {
	b, err := env.Marshal()
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(b), nil
}

// Unframe extracts the envelope carried by a gRPC stream frame.
func Unframe(f *wrapperspb.BytesValue) (*Envelope, error) {
	return ParseEnvelope(f.GetValue())
}

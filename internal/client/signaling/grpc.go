package signaling

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type grpcStream struct {
	cc     *grpc.ClientConn
	stream proto.Signaling_ConnectClient
	cancel context.CancelFunc
}

func (s *grpcStream) Send(env *proto.Envelope) error {
	f, err := proto.Frame(env)
	if err != nil {
		return err
	}
	return s.stream.Send(f)
}

func (s *grpcStream) Recv() (*proto.Envelope, error) {
	for {
		f, err := s.stream.Recv()
		if err != nil {
			return nil, err
		}
		env, err := proto.Unframe(f)
		if err != nil {
			// skip the frame, the stream itself is still usable
			continue
		}
		return env, nil
	}
}

func (s *grpcStream) Close() error {
	_ = s.stream.CloseSend()
	s.cancel()
	return s.cc.Close()
}

// Dial opens a signaling stream to the server at addr. Extra dial options
// are appended after the insecure transport credentials.
func Dial(ctx context.Context, addr string, logger logging.Logger, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}

	// The stream outlives the dial context.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := proto.NewSignalingClient(cc).Connect(sctx)
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}

	return NewClient(&grpcStream{cc: cc, stream: stream, cancel: cancel}, logger), nil
}

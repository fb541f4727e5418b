package grpc

import (
	"errors"
	"io"
	"sync"

	pb "github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// streamConn adapts one server stream to signaling.Conn. The hub sends from
// other goroutines, so Send is serialized.
type streamConn struct {
	id     string
	mu     sync.Mutex
	stream pb.Signaling_ConnectServer
}

func newStreamConn(stream pb.Signaling_ConnectServer) *streamConn {
	return &streamConn{id: uuid.NewString(), stream: stream}
}

func (c *streamConn) ID() string { return c.id }

func (c *streamConn) Send(env *pb.Envelope) error {
	frame, err := pb.Frame(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Send(frame)
}

// Connect reads envelopes off the stream until the client hangs up.
func (s *GRPCServer) Connect(stream pb.Signaling_ConnectServer) error {
	ctx := stream.Context()
	conn := newStreamConn(stream)
	logger := s.logger.With("conn", conn.ID())

	defer s.coordinator.Disconnect(ctx, conn)

	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if c := status.Code(err); c == codes.Canceled || c == codes.DeadlineExceeded {
				return nil
			}
			logger.Warn(ctx, "stream receive failed", "error", err)
			return err
		}

		env, err := pb.Unframe(frame)
		if err != nil {
			logger.Warn(ctx, "dropping malformed frame", "error", err)
			continue
		}

		s.coordinator.Handle(ctx, conn, env)
	}
}

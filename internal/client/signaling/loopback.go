package signaling

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/google/uuid"

	srv "github.com/dmitrijs2005/safeshare/internal/server/signaling"
)

// Handler is the server-side coordinator a loopback stream talks to.
type Handler interface {
	Handle(ctx context.Context, conn srv.Conn, env *proto.Envelope)
	Disconnect(ctx context.Context, conn srv.Conn)
}

// loopback connects a client to an in-process coordinator without any
// network in between.
type loopback struct {
	id      string
	handler Handler

	mu     sync.Mutex
	closed bool
	inbox  chan *proto.Envelope
	done   chan struct{}
}

// NewLoopback returns a Stream wired straight into h.
func NewLoopback(h Handler) Stream {
	return &loopback{
		id:      "loopback-" + uuid.NewString(),
		handler: h,
		inbox:   make(chan *proto.Envelope, 256),
		done:    make(chan struct{}),
	}
}

// deliver queues a server push for Recv.
func (l *loopback) deliver(env *proto.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return io.ErrClosedPipe
	}
	select {
	case l.inbox <- env:
		return nil
	default:
		return errors.New("loopback inbox full")
	}
}

func (l *loopback) Send(env *proto.Envelope) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	l.handler.Handle(context.Background(), serverSide{l}, env)
	return nil
}

func (l *loopback) Recv() (*proto.Envelope, error) {
	select {
	case env := <-l.inbox:
		return env, nil
	case <-l.done:
		return nil, io.EOF
	}
}

func (l *loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.handler.Disconnect(context.Background(), serverSide{l})
	return nil
}

// serverSide is the loopback as seen by the coordinator.
type serverSide struct{ l *loopback }

func (s serverSide) ID() string                     { return s.l.id }
func (s serverSide) Send(env *proto.Envelope) error { return s.l.deliver(env) }

package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/proto"
)

const eventBuffer = 64

// Stream is one bidirectional envelope connection to the server.
type Stream interface {
	Send(env *proto.Envelope) error
	Recv() (*proto.Envelope, error)
	Close() error
}

var _ Signaler = (*Client)(nil)

// Client implements Signaler over a Stream.
type Client struct {
	stream Stream
	logger logging.Logger

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan *proto.Envelope
	err     error

	sendMu sync.Mutex

	events    chan *proto.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient starts reading from stream. The client owns the stream.
func NewClient(stream Stream, logger logging.Logger) *Client {
	c := &Client{
		stream:  stream,
		logger:  logger.With("module", "signaling_client"),
		pending: make(map[uint64]chan *proto.Envelope),
		events:  make(chan *proto.Envelope, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		env, err := c.stream.Recv()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", common.ErrTransport, err))
			return
		}

		if env.Event == proto.EventAck {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.mu.Unlock()
			if ok {
				ch <- env
			} else {
				c.logger.Debug(context.Background(), "ack without request", "id", env.ID)
			}
			continue
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

// fail records the first terminal error and wakes every waiting request.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) send(env *proto.Envelope) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.Send(env); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	return nil
}

// request sends an ack-bearing event and waits for the matching ack.
func (c *Client) request(ctx context.Context, event string, payload any) (*proto.Ack, error) {
	if !proto.IsRequest(event) {
		return nil, fmt.Errorf("%w: %s is not acknowledged", common.ErrProtocol, event)
	}
	id := c.nextID.Add(1)
	env, err := proto.NewEnvelope(event, id, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan *proto.Envelope, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.send(env); err != nil {
		forget()
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return nil, c.err
		}
		var ack proto.Ack
		if err := reply.Decode(&ack); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrProtocol, err)
		}
		if !ack.Success {
			return &ack, fmt.Errorf("%w: %s", ErrRejected, ack.Message)
		}
		return &ack, nil
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

func (c *Client) notify(event string, payload any) error {
	env, err := proto.NewEnvelope(event, 0, payload)
	if err != nil {
		return err
	}
	return c.send(env)
}

func (c *Client) CreateTransfer(ctx context.Context, senderID string, meta proto.FileMetadata) (string, error) {
	ack, err := c.request(ctx, proto.EventCreateTransfer, proto.CreateTransfer{SenderID: senderID, FileMetadata: meta})
	if err != nil {
		return "", err
	}
	if ack.Code == "" {
		return "", fmt.Errorf("%w: ack without code", common.ErrProtocol)
	}
	return ack.Code, nil
}

func (c *Client) JoinTransfer(ctx context.Context, code, receiverID string) (*proto.Session, error) {
	ack, err := c.request(ctx, proto.EventJoinTransfer, proto.JoinTransfer{Code: code, ReceiverID: receiverID})
	if err != nil {
		return nil, err
	}
	if ack.Session == nil {
		return nil, fmt.Errorf("%w: ack without session", common.ErrProtocol)
	}
	return ack.Session, nil
}

func (c *Client) SendOffer(ctx context.Context, code, senderID string, offer json.RawMessage) error {
	return c.notify(proto.EventSendOffer, proto.SendOffer{Code: code, SenderID: senderID, Offer: offer})
}

func (c *Client) SendCandidate(ctx context.Context, code, side string, candidate json.RawMessage) error {
	return c.notify(proto.EventSendCandidate, proto.Candidate{Code: code, Side: side, Candidate: candidate})
}

func (c *Client) SendAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error {
	return c.notify(proto.EventSendAnswer, proto.SendAnswer{Code: code, ReceiverID: receiverID, Answer: answer})
}

func (c *Client) TransferCompleted(ctx context.Context, code string) error {
	return c.notify(proto.EventTransferCompleted, proto.TransferCompleted{Code: code})
}

func (c *Client) Events() <-chan *proto.Envelope { return c.events }

// Close hangs up. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.fail(fmt.Errorf("%w: client closed", common.ErrTransport))
		err = c.stream.Close()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

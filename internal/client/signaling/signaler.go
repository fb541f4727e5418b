// Package signaling is the client side of the rendezvous protocol. A
// Signaler sends requests to the signaling server, matches acks to them by
// envelope id and surfaces everything else the server pushes on Events.
package signaling

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/safeshare/internal/proto"
)

// ErrRejected is returned when the server answers a request with a failed
// ack. The ack message is appended to the error text.
var ErrRejected = errors.New("request rejected")

// Signaler decouples the peer orchestrators from the signaling transport.
type Signaler interface {
	CreateTransfer(ctx context.Context, senderID string, meta proto.FileMetadata) (string, error)
	JoinTransfer(ctx context.Context, code, receiverID string) (*proto.Session, error)

	SendOffer(ctx context.Context, code, senderID string, offer json.RawMessage) error
	SendCandidate(ctx context.Context, code, side string, candidate json.RawMessage) error
	SendAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error
	TransferCompleted(ctx context.Context, code string) error

	// Events carries server pushes. It is closed when the connection ends.
	Events() <-chan *proto.Envelope

	Close() error
}

// Package proto is the signaling wire contract shared by the server
// transports and the client. Every message is a JSON Envelope; on gRPC the
// envelope travels inside a google.protobuf.BytesValue frame, on WebSocket as
// a text frame.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names.
const (
	EventAck = "ack"

	EventCreateTransfer    = "create-transfer"
	EventSendOffer         = "send-offer"
	EventOfferReceived     = "offer-received"
	EventSendCandidate     = "send-candidate"
	EventCandidateReceived = "candidate-received"
	EventJoinTransfer      = "join-transfer"
	EventReceiverJoined    = "receiver-joined"
	EventSendAnswer        = "send-answer"
	EventAnswerReceived    = "answer-received"
	EventTransferCompleted = "transfer-completed"
	EventTransferFinalized = "transfer-finalized"
)

// Candidate owners.
const (
	SideSender   = "sender"
	SideReceiver = "receiver"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is one signaling message. ID is set on requests that expect an
// ack and echoed back on the ack.
type Envelope struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into the Data field. A nil payload leaves
// Data empty.
func NewEnvelope(event string, id uint64, payload any) (*Envelope, error) {
	env := &Envelope{Event: event, ID: id}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// ParseEnvelope decodes a raw frame and requires a non-empty event name.
func ParseEnvelope(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	return &env, nil
}

// Marshal returns the JSON form of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals Data into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedEnvelope, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Event, err)
	}
	return nil
}

type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

type CreateTransfer struct {
	SenderID     string       `json:"senderId"`
	FileMetadata FileMetadata `json:"fileMetadata"`
}

type SendOffer struct {
	Code     string          `json:"code"`
	SenderID string          `json:"senderId"`
	Offer    json.RawMessage `json:"offer"`
}

type OfferReceived struct {
	Code         string          `json:"code"`
	Offer        json.RawMessage `json:"offer"`
	FileMetadata FileMetadata    `json:"fileMetadata"`
}

// Candidate is used both for send-candidate and candidate-received.
type Candidate struct {
	Code      string          `json:"code"`
	Candidate json.RawMessage `json:"candidate"`
	Side      string          `json:"side"`
}

type JoinTransfer struct {
	Code       string `json:"code"`
	ReceiverID string `json:"receiverId"`
}

type ReceiverJoined struct {
	Code string `json:"code"`
}

type SendAnswer struct {
	Code       string          `json:"code"`
	ReceiverID string          `json:"receiverId"`
	Answer     json.RawMessage `json:"answer"`
}

type AnswerReceived struct {
	Code   string          `json:"code"`
	Answer json.RawMessage `json:"answer"`
}

type TransferCompleted struct {
	Code string `json:"code"`
}

type TransferFinalized struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

// Session is the session record as returned to a joining receiver.
type Session struct {
	Code               string            `json:"code"`
	Offer              json.RawMessage   `json:"offer,omitempty"`
	Answer             json.RawMessage   `json:"answer,omitempty"`
	SenderID           string            `json:"senderId"`
	ReceiverID         string            `json:"receiverId,omitempty"`
	FileMetadata       FileMetadata      `json:"fileMetadata"`
	Status             string            `json:"status"`
	SenderCandidates   []json.RawMessage `json:"senderCandidates"`
	ReceiverCandidates []json.RawMessage `json:"receiverCandidates"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Ack answers create-transfer and join-transfer.
type Ack struct {
	Success bool     `json:"success"`
	Code    string   `json:"code,omitempty"`
	Session *Session `json:"session,omitempty"`
	Message string   `json:"message,omitempty"`
}

// IsRequest reports whether the event expects an ack.
func IsRequest(event string) bool {
	return event == EventCreateTransfer || event == EventJoinTransfer
}

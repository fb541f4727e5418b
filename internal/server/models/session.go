// Package models defines the server-side records persisted by the session
// store.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
)

// Status is the lifecycle state of a session. It only ever moves forward:
// pending -> connecting -> active -> completed. Cancelled is terminal and
// reserved; no operation sets it yet.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	// StatusExpired is never stored; swept rows are deleted and reported
	// with this status to the archive.
	StatusExpired Status = "expired"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Side identifies which peer produced an ICE candidate.
type Side string

const (
	SideSender   Side = "sender"
	SideReceiver Side = "receiver"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideSender, SideReceiver:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: unknown side %q", common.ErrorIncorrectMetadata, s)
}

const (
	MaxFileNameLength = 255
	DefaultMimeType   = "application/octet-stream"
)

type FileMetadata struct {
	Name      string
	SizeBytes int64
	MimeType  string
}

// Normalize validates the metadata and fills in the default MIME type.
func (m *FileMetadata) Normalize() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: empty file name", common.ErrorIncorrectMetadata)
	case len(m.Name) > MaxFileNameLength:
		return fmt.Errorf("%w: file name longer than %d bytes", common.ErrorIncorrectMetadata, MaxFileNameLength)
	case m.SizeBytes < 0:
		return fmt.Errorf("%w: negative size", common.ErrorIncorrectMetadata)
	}
	if m.MimeType == "" {
		m.MimeType = DefaultMimeType
	}
	return nil
}

// Session is the rendezvous record shared by one sender and one receiver.
// Offer, Answer and the candidates are opaque JSON produced by the peers.
type Session struct {
	Code               string
	Offer              json.RawMessage
	Answer             json.RawMessage
	SenderID           string
	ReceiverID         string
	FileMetadata       FileMetadata
	Status             Status
	SenderCandidates   []json.RawMessage
	ReceiverCandidates []json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a deep copy so in-memory callers cannot alias store state.
func (s *Session) Clone() *Session {
	c := *s
	c.Offer = cloneRaw(s.Offer)
	c.Answer = cloneRaw(s.Answer)
	c.SenderCandidates = cloneList(s.SenderCandidates)
	c.ReceiverCandidates = cloneList(s.ReceiverCandidates)
	return &c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

func cloneList(l []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(l))
	for i, r := range l {
		out[i] = cloneRaw(r)
	}
	return out
}

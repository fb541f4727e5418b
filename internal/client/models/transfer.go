// Package models defines client-side data models used by the safeshare CLI.
package models

import "time"

// Role tells which side of a transfer this client played.
type Role string

const (
	RoleSend    Role = "send"
	RoleReceive Role = "receive"
)

// Status is the outcome recorded in the transfer history.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Transfer is one history row.
type Transfer struct {
	ID   string
	Code string
	Role Role

	FileName  string
	SizeBytes int64
	MimeType  string

	Status Status
	// Error is the status string shown to the user when the transfer failed.
	Error string

	StartedAt time.Time
	// FinishedAt is zero while the transfer is in progress.
	FinishedAt time.Time
}

// Finished reports whether the transfer has reached a final status.
func (t *Transfer) Finished() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Package sessions stores rendezvous sessions. Every mutating method is a
// single conditional update, so concurrent callers on one code serialize on
// the row and status can only move forward.
package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/server/models"
)

const DefaultCandidateLimit = 128

type Repository interface {
	Exists(ctx context.Context, code string) (bool, error)
	// Create inserts a pending session; common.ErrDuplicateCode if the code
	// is taken.
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, code string) (*models.Session, error)

	SetOffer(ctx context.Context, code, senderID string, offer json.RawMessage) (*models.Session, error)
	AppendCandidate(ctx context.Context, code string, side models.Side, candidate json.RawMessage) error
	// Join binds the receiver (first join wins) and activates the session.
	// A repeated join by the same receiver returns the current record.
	Join(ctx context.Context, code, receiverID string) (*models.Session, error)
	SetAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error
	Complete(ctx context.Context, code string) error

	// Sweep deletes pending and completed sessions last updated before
	// cutoff and returns them.
	Sweep(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	// SweepAbandoned does the same for connecting and active sessions.
	SweepAbandoned(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
}

type options struct {
	candidateLimit int
	now            func() time.Time
}

type Option func(*options)

// WithCandidateLimit caps each candidate list; appends past the cap are
// rejected as not found.
func WithCandidateLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.candidateLimit = n
		}
	}
}

// WithClock replaces time.Now for created_at / updated_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{candidateLimit: DefaultCandidateLimit, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
)

// MemoryRepository keeps sessions in a map behind one mutex, which gives the
// same per-code serialization as the conditional updates of the Postgres
// store. Used when no DSN is configured.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	opts     options
}

func NewMemoryRepository(opts ...Option) *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
		opts:     buildOptions(opts),
	}
}

func (r *MemoryRepository) Exists(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[code]
	return ok, nil
}

func (r *MemoryRepository) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.Code]; ok {
		return common.ErrDuplicateCode
	}

	now := r.opts.now().UTC()
	s.Status = models.StatusPending
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.SenderCandidates == nil {
		s.SenderCandidates = []json.RawMessage{}
	}
	if s.ReceiverCandidates == nil {
		s.ReceiverCandidates = []json.RawMessage{}
	}

	r.sessions[s.Code] = s.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, code string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) SetOffer(ctx context.Context, code, senderID string, offer json.RawMessage) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok || s.SenderID != senderID || s.Status != models.StatusPending {
		return nil, common.ErrorNotFound
	}

	s.Offer = append(json.RawMessage(nil), offer...)
	s.Status = models.StatusConnecting
	s.UpdatedAt = r.opts.now().UTC()
	return s.Clone(), nil
}

func (r *MemoryRepository) AppendCandidate(ctx context.Context, code string, side models.Side, candidate json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok || s.Status.Terminal() {
		return common.ErrorNotFound
	}

	var list *[]json.RawMessage
	switch side {
	case models.SideSender:
		list = &s.SenderCandidates
	case models.SideReceiver:
		list = &s.ReceiverCandidates
	default:
		return fmt.Errorf("%w: unknown side %q", common.ErrorIncorrectMetadata, side)
	}

	if len(*list) >= r.opts.candidateLimit {
		return common.ErrorNotFound
	}

	*list = append(*list, append(json.RawMessage(nil), candidate...))
	s.UpdatedAt = r.opts.now().UTC()
	return nil
}

func (r *MemoryRepository) Join(ctx context.Context, code, receiverID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if s.Status != models.StatusConnecting && s.Status != models.StatusActive {
		return nil, common.ErrorNotFound
	}
	if s.ReceiverID != "" && s.ReceiverID != receiverID {
		return nil, common.ErrConflict
	}

	s.ReceiverID = receiverID
	s.Status = models.StatusActive
	s.UpdatedAt = r.opts.now().UTC()
	return s.Clone(), nil
}

func (r *MemoryRepository) SetAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok || s.ReceiverID != receiverID || s.Status != models.StatusActive || s.Answer != nil {
		return common.ErrorNotFound
	}

	s.Answer = append(json.RawMessage(nil), answer...)
	s.UpdatedAt = r.opts.now().UTC()
	return nil
}

func (r *MemoryRepository) Complete(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok || (s.Status.Terminal() && s.Status != models.StatusCompleted) {
		return common.ErrorNotFound
	}

	s.Status = models.StatusCompleted
	s.UpdatedAt = r.opts.now().UTC()
	return nil
}

func (r *MemoryRepository) Sweep(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	return r.deleteOlder(cutoff, models.StatusPending, models.StatusCompleted), nil
}

func (r *MemoryRepository) SweepAbandoned(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	return r.deleteOlder(cutoff, models.StatusConnecting, models.StatusActive), nil
}

func (r *MemoryRepository) deleteOlder(cutoff time.Time, statuses ...models.Status) []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept []*models.Session
	for code, s := range r.sessions {
		if !s.UpdatedAt.Before(cutoff) || !slices.Contains(statuses, s.Status) {
			continue
		}
		swept = append(swept, s)
		delete(r.sessions, code)
	}

	sort.Slice(swept, func(i, j int) bool { return swept[i].Code < swept[j].Code })
	return swept
}

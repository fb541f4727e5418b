// Package services holds the server-side business logic: minting rendezvous
// codes, validating signaling requests before they reach the session store,
// and sweeping expired sessions.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
)

type SessionService struct {
	sessions    sessions.Repository
	codes       CodeGenerator
	codeLength  int
	maxAttempts int
	logger      logging.Logger
}

func NewSessionService(repo sessions.Repository, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		sessions:    repo,
		codes:       RandomCode,
		codeLength:  cfg.CodeLength,
		maxAttempts: cfg.MaxCodeAttempts,
		logger:      logger.With("module", "session_service"),
	}
}

// WithCodeGenerator replaces the random code source.
func (s *SessionService) WithCodeGenerator(g CodeGenerator) *SessionService {
	s.codes = g
	return s
}

// CreateSession mints a fresh code and stores a pending session under it.
// A collision, whether seen by Exists or by a concurrent insert, costs one
// attempt.
func (s *SessionService) CreateSession(ctx context.Context, senderID string, meta models.FileMetadata) (string, error) {
	if senderID == "" {
		return "", fmt.Errorf("%w: empty sender id", common.ErrInvalidArgument)
	}
	if err := meta.Normalize(); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.codes(s.codeLength)
		if err != nil {
			return "", err
		}

		exists, err := s.sessions.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if exists {
			s.logger.Debug(ctx, "code collision", "attempt", attempt)
			continue
		}

		err = s.sessions.Create(ctx, &models.Session{Code: code, SenderID: senderID, FileMetadata: meta})
		if errors.Is(err, common.ErrDuplicateCode) {
			s.logger.Debug(ctx, "code taken concurrently", "attempt", attempt)
			continue
		}
		if err != nil {
			return "", err
		}

		s.logger.Info(ctx, "session created", "code", code, "file", meta.Name, "size", meta.SizeBytes)
		return code, nil
	}

	return "", common.ErrGenerationExhausted
}

func (s *SessionService) SetOffer(ctx context.Context, code, senderID string, offer json.RawMessage) (*models.Session, error) {
	code = NormalizeCode(code)
	if err := s.checkCode(code); err != nil {
		return nil, err
	}
	if senderID == "" {
		return nil, fmt.Errorf("%w: empty sender id", common.ErrInvalidArgument)
	}
	if err := checkJSON("offer", offer); err != nil {
		return nil, err
	}
	return s.sessions.SetOffer(ctx, code, senderID, offer)
}

func (s *SessionService) AppendCandidate(ctx context.Context, code, side string, candidate json.RawMessage) error {
	code = NormalizeCode(code)
	if err := s.checkCode(code); err != nil {
		return err
	}
	sd, err := models.ParseSide(side)
	if err != nil {
		return err
	}
	if err := checkJSON("candidate", candidate); err != nil {
		return err
	}
	return s.sessions.AppendCandidate(ctx, code, sd, candidate)
}

func (s *SessionService) Join(ctx context.Context, code, receiverID string) (*models.Session, error) {
	code = NormalizeCode(code)
	if err := s.checkCode(code); err != nil {
		return nil, err
	}
	if receiverID == "" {
		return nil, fmt.Errorf("%w: empty receiver id", common.ErrInvalidArgument)
	}
	return s.sessions.Join(ctx, code, receiverID)
}

func (s *SessionService) SetAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error {
	code = NormalizeCode(code)
	if err := s.checkCode(code); err != nil {
		return err
	}
	if receiverID == "" {
		return fmt.Errorf("%w: empty receiver id", common.ErrInvalidArgument)
	}
	if err := checkJSON("answer", answer); err != nil {
		return err
	}
	return s.sessions.SetAnswer(ctx, code, receiverID, answer)
}

func (s *SessionService) Complete(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if err := s.checkCode(code); err != nil {
		return err
	}
	return s.sessions.Complete(ctx, code)
}

// checkCode rejects codes that cannot exist; they are reported as not found
// like any other unknown code.
func (s *SessionService) checkCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty code", common.ErrInvalidArgument)
	}
	if !validCode(code, s.codeLength) {
		return common.ErrorNotFound
	}
	return nil
}

func checkJSON(field string, v json.RawMessage) error {
	if len(v) == 0 || !json.Valid(v) {
		return fmt.Errorf("%w: %s is not valid JSON", common.ErrInvalidArgument, field)
	}
	return nil
}

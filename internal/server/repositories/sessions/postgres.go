package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/dbx"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

const sessionColumns = `code, offer, answer, sender_id, receiver_id, file_name, file_size, mime_type, status, sender_candidates, receiver_candidates, created_at, updated_at`

type PostgresRepository struct {
	db   dbx.DBTX
	opts options
}

func NewPostgresRepository(db dbx.DBTX, opts ...Option) *PostgresRepository {
	return &PostgresRepository{db: db, opts: buildOptions(opts)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                  models.Session
		offer, answer      []byte
		receiverID         sql.NullString
		sendCand, recvCand []byte
		status             string
	)

	err := row.Scan(&s.Code, &offer, &answer, &s.SenderID, &receiverID,
		&s.FileMetadata.Name, &s.FileMetadata.SizeBytes, &s.FileMetadata.MimeType,
		&status, &sendCand, &recvCand, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.Status = models.Status(status)
	s.ReceiverID = receiverID.String
	if len(offer) > 0 {
		s.Offer = json.RawMessage(offer)
	}
	if len(answer) > 0 {
		s.Answer = json.RawMessage(answer)
	}
	if s.SenderCandidates, err = decodeCandidates(sendCand); err != nil {
		return nil, err
	}
	if s.ReceiverCandidates, err = decodeCandidates(recvCand); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeCandidates(b []byte) ([]json.RawMessage, error) {
	list := []json.RawMessage{}
	if len(b) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return list, nil
}

func nullableJSON(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func (r *PostgresRepository) Exists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sessions WHERE code = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO sessions (code, offer, sender_id, file_name, file_size, mime_type, status, created_at, updated_at)
		 VALUES ($1, $2::jsonb, $3, $4, $5, $6, 'pending', $7, $7)`

	now := r.opts.now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		s.Code, nullableJSON(s.Offer), s.SenderID,
		s.FileMetadata.Name, s.FileMetadata.SizeBytes, s.FileMetadata.MimeType, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrDuplicateCode
		}
		return fmt.Errorf("db error: %w", err)
	}

	s.Status = models.StatusPending
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.SenderCandidates == nil {
		s.SenderCandidates = []json.RawMessage{}
	}
	if s.ReceiverCandidates == nil {
		s.ReceiverCandidates = []json.RawMessage{}
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, code string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE code = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) SetOffer(ctx context.Context, code, senderID string, offer json.RawMessage) (*models.Session, error) {
	query :=
		`UPDATE sessions SET offer = $3::jsonb, status = 'connecting', updated_at = $4
		 WHERE code = $1 AND sender_id = $2 AND status = 'pending'
		 RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, code, senderID, string(offer), r.opts.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) AppendCandidate(ctx context.Context, code string, side models.Side, candidate json.RawMessage) error {
	var column string
	switch side {
	case models.SideSender:
		column = "sender_candidates"
	case models.SideReceiver:
		column = "receiver_candidates"
	default:
		return fmt.Errorf("%w: unknown side %q", common.ErrorIncorrectMetadata, side)
	}

	query := `UPDATE sessions SET ` + column + ` = ` + column + ` || jsonb_build_array($2::jsonb), updated_at = $3
		 WHERE code = $1 AND status IN ('pending', 'connecting', 'active') AND jsonb_array_length(` + column + `) < $4`

	res, err := r.db.ExecContext(ctx, query, code, string(candidate), r.opts.now().UTC(), r.opts.candidateLimit)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Join(ctx context.Context, code, receiverID string) (*models.Session, error) {
	query :=
		`UPDATE sessions SET receiver_id = COALESCE(receiver_id, $2), status = 'active', updated_at = $3
		 WHERE code = $1 AND status IN ('connecting', 'active') AND (receiver_id IS NULL OR receiver_id = $2)
		 RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, code, receiverID, r.opts.now().UTC()))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return nil, r.classifyJoinMiss(ctx, code, receiverID)
}

// classifyJoinMiss tells a live session held by someone else apart from every
// other failed join, which is reported as not found.
func (r *PostgresRepository) classifyJoinMiss(ctx context.Context, code, receiverID string) error {
	query := `SELECT status, receiver_id FROM sessions WHERE code = $1`

	var (
		status string
		holder sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, code).Scan(&status, &holder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	live := models.Status(status) == models.StatusConnecting || models.Status(status) == models.StatusActive
	if live && holder.Valid && holder.String != receiverID {
		return common.ErrConflict
	}
	return common.ErrorNotFound
}

func (r *PostgresRepository) SetAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error {
	query :=
		`UPDATE sessions SET answer = $3::jsonb, updated_at = $4
		 WHERE code = $1 AND receiver_id = $2 AND status = 'active' AND answer IS NULL`

	res, err := r.db.ExecContext(ctx, query, code, receiverID, string(answer), r.opts.now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Complete(ctx context.Context, code string) error {
	query :=
		`UPDATE sessions SET status = 'completed', updated_at = $2
		 WHERE code = $1 AND status IN ('pending', 'connecting', 'active', 'completed')`

	res, err := r.db.ExecContext(ctx, query, code, r.opts.now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Sweep(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	return r.deleteOlder(ctx, cutoff, models.StatusPending, models.StatusCompleted)
}

func (r *PostgresRepository) SweepAbandoned(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	return r.deleteOlder(ctx, cutoff, models.StatusConnecting, models.StatusActive)
}

func (r *PostgresRepository) deleteOlder(ctx context.Context, cutoff time.Time, a, b models.Status) ([]*models.Session, error) {
	query :=
		`DELETE FROM sessions
		 WHERE status IN ($2, $3) AND updated_at < $1
		 RETURNING ` + sessionColumns

	rows, err := r.db.QueryContext(ctx, query, cutoff.UTC(), string(a), string(b))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var swept []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		swept = append(swept, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return swept, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

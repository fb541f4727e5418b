package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/client/migrations"
	"github.com/dmitrijs2005/safeshare/internal/client/models"
	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RunMigrations applies the embedded client migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens the history database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// one connection keeps ":memory:" databases and sqlite locking simple
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, t *models.Transfer) error {
	query := `INSERT INTO transfers (id, code, role, file_name, file_size, mime_type, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Code, string(t.Role), t.FileName, t.SizeBytes, t.MimeType,
		string(t.Status), t.Error, t.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Finish(ctx context.Context, t *models.Transfer) error {
	query := `UPDATE transfers SET code = ?, file_name = ?, file_size = ?, mime_type = ?,
		status = ?, error = ?, finished_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, t.Code, t.FileName, t.SizeBytes, t.MimeType,
		string(t.Status), t.Error, t.FinishedAt.UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

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

const selectTransfer = `SELECT id, code, role, file_name, file_size, mime_type, status, error, started_at, finished_at
	FROM transfers`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(s scanner) (*models.Transfer, error) {
	var (
		t        models.Transfer
		role     string
		status   string
		finished sql.NullTime
		started  time.Time
	)
	if err := s.Scan(&t.ID, &t.Code, &role, &t.FileName, &t.SizeBytes, &t.MimeType, &status, &t.Error,
		&started, &finished); err != nil {
		return nil, err
	}
	t.Role = models.Role(role)
	t.Status = models.Status(status)
	t.StartedAt = started.UTC()
	if finished.Valid {
		t.FinishedAt = finished.Time.UTC()
	}
	return &t, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Transfer, error) {
	row := r.db.QueryRowContext(ctx, selectTransfer+` WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*models.Transfer, error) {
	query := selectTransfer + ` ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

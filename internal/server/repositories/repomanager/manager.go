// Package repomanager owns the session store backend: it opens the database,
// runs migrations and hands out repositories, optionally scoped to a
// transaction.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Sessions() sessions.Repository
	// InTx runs fn against a repository whose writes commit only if fn
	// returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, repo sessions.Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// New returns a Postgres manager for a non-empty dsn and an in-memory one
// otherwise.
func New(dsn string, opts ...sessions.Option) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(opts...), nil
	}
	m, err := NewPostgresRepositoryManager(dsn, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

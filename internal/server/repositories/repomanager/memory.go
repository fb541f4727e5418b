package repomanager

import (
	"context"

	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
)

// MemoryRepositoryManager serves a single process-local store. InTx has no
// rollback: writes made by fn stay even when it fails.
type MemoryRepositoryManager struct {
	repo *sessions.MemoryRepository
}

func NewMemoryRepositoryManager(opts ...sessions.Option) *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repo: sessions.NewMemoryRepository(opts...)}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Sessions() sessions.Repository { return m.repo }

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, repo sessions.Repository) error) error {
	return fn(ctx, m.repo)
}

func (m *MemoryRepositoryManager) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryRepositoryManager) Close() error { return nil }

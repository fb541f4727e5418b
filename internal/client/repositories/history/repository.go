// Package history persists the client's transfer history in SQLite.
//
// A row is created when a send or receive starts and completed once with the
// outcome. The CLI lists the most recent rows with the history command.
package history

import (
	"context"

	"github.com/dmitrijs2005/safeshare/internal/client/models"
)

type Repository interface {
	// Create inserts a new in-progress transfer.
	Create(ctx context.Context, t *models.Transfer) error

	// Finish stores the code, file metadata, final status, error text and
	// finish time of an existing transfer. A receiver only learns the file
	// metadata on delivery. Returns common.ErrorNotFound for an unknown id.
	Finish(ctx context.Context, t *models.Transfer) error

	GetByID(ctx context.Context, id string) (*models.Transfer, error)

	// List returns up to limit transfers, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*models.Transfer, error)
}

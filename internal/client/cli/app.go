package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/client/config"
	"github.com/dmitrijs2005/safeshare/internal/client/models"
	"github.com/dmitrijs2005/safeshare/internal/client/peer"
	"github.com/dmitrijs2005/safeshare/internal/client/repositories/history"
	"github.com/dmitrijs2005/safeshare/internal/client/signaling"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/transfer"
	"github.com/google/uuid"
)

// Dialer opens the signaling connection on first use, so commands that never
// signal (history) work with the server down.
type Dialer func(ctx context.Context) (signaling.Signaler, error)

// App is what a command runs against: the signaling connection, the history
// store and the output stream.
type App struct {
	config  *config.Config
	logger  logging.Logger
	dial    Dialer
	history history.Repository
	out     io.Writer

	signal  signaling.Signaler
	closers []io.Closer
	now     func() time.Time
}

// NewApp opens the history database and prepares a gRPC signaling dialer.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, out io.Writer) (*App, error) {
	db, err := history.Open(ctx, c.HistoryDSN)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	dial := func(ctx context.Context) (signaling.Signaler, error) {
		sig, err := signaling.Dial(ctx, c.ServerEndpointAddr, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", c.ServerEndpointAddr, err)
		}
		return sig, nil
	}

	a := newApp(c, logger, dial, history.NewSQLiteRepository(db), out)
	a.closers = append(a.closers, dbCloser{db})
	return a, nil
}

func newApp(c *config.Config, logger logging.Logger, dial Dialer, repo history.Repository, out io.Writer) *App {
	return &App{
		config:  c,
		logger:  logger,
		dial:    dial,
		history: repo,
		out:     out,
		now:     time.Now,
	}
}

type dbCloser struct{ db *sql.DB }

func (d dbCloser) Close() error { return d.db.Close() }

func (a *App) Close() error {
	var errs []error
	if a.signal != nil {
		errs = append(errs, a.signal.Close())
		a.signal = nil
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) signaler(ctx context.Context) (signaling.Signaler, error) {
	if a.signal != nil {
		return a.signal, nil
	}
	sig, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	a.signal = sig
	return sig, nil
}

func (a *App) peerOptions() peer.Options {
	return peer.Options{
		ICEServers:      a.config.ICEServers,
		SignalTimeout:   a.config.SignalTimeout,
		LingerTimeout:   a.config.LingerTimeout,
		IncludeLoopback: a.config.LoopbackCandidates,
	}
}

// begin records a new in-progress transfer. History failures never stop a
// transfer; they are logged and the returned row is still usable.
func (a *App) begin(ctx context.Context, role models.Role, code string, meta transfer.Metadata) *models.Transfer {
	t := &models.Transfer{
		ID:        uuid.NewString(),
		Code:      code,
		Role:      role,
		FileName:  meta.Name,
		SizeBytes: meta.SizeBytes,
		MimeType:  meta.MimeType,
		Status:    models.StatusInProgress,
		StartedAt: a.now(),
	}
	if err := a.history.Create(ctx, t); err != nil {
		a.logger.Warn(ctx, "history not recorded", "error", err)
	}
	return t
}

// finish stores the outcome of t and returns the status string shown to the user.
func (a *App) finish(ctx context.Context, t *models.Transfer, err error) string {
	t.FinishedAt = a.now()
	t.Status = models.StatusCompleted
	t.Error = ""
	if err != nil {
		t.Status = models.StatusFailed
		t.Error = statusText(err)
	}

	// the command context may already be cancelled
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if herr := a.history.Finish(hctx, t); herr != nil {
		a.logger.Warn(ctx, "history not updated", "id", t.ID, "error", herr)
	}

	if err != nil {
		return t.Error
	}
	return string(t.Status)
}

package cli

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/client/config"
	"github.com/dmitrijs2005/safeshare/internal/client/models"
	"github.com/dmitrijs2005/safeshare/internal/client/peer"
	"github.com/dmitrijs2005/safeshare/internal/client/repositories/history"
	"github.com/dmitrijs2005/safeshare/internal/client/signaling"
	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	sconfig "github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/safeshare/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srv "github.com/dmitrijs2005/safeshare/internal/server/signaling"
)

// syncBuffer is written by the command goroutine and polled by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newCoordinator(t *testing.T) *srv.Coordinator {
	t.Helper()
	cfg := &sconfig.Config{}
	cfg.LoadDefaults()
	svc := services.NewSessionService(sessions.NewMemoryRepository(), cfg, logging.Discard()).
		WithCodeGenerator(services.SequenceCodes("AB12CD"))
	return srv.NewCoordinator(svc, srv.NewHub(), logging.Discard())
}

func newRepo(t *testing.T) *history.SQLiteRepository {
	t.Helper()
	db, err := history.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return history.NewSQLiteRepository(db)
}

// loopbackOpener builds Apps that signal through coord in-process.
func loopbackOpener(coord *srv.Coordinator, repo history.Repository) Opener {
	return func(_ context.Context, c *config.Config, logger logging.Logger, out io.Writer) (*App, error) {
		dial := func(context.Context) (signaling.Signaler, error) {
			return signaling.NewClient(signaling.NewLoopback(coord), logger), nil
		}
		return newApp(c, logger, dial, repo, out), nil
	}
}

type run struct {
	out     *syncBuffer
	errOut  *syncBuffer
	done    chan error
	cleanup func() error
}

func start(ctx context.Context, open Opener, args ...string) *run {
	cfg := &config.Config{}
	cfg.LoadDefaults()

	root, closeApp := NewRootCommand(cfg, open)
	r := &run{out: &syncBuffer{}, errOut: &syncBuffer{}, done: make(chan error, 1), cleanup: closeApp}
	root.SetOut(r.out)
	root.SetErr(r.errOut)
	root.SetArgs(args)

	go func() { r.done <- root.ExecuteContext(ctx) }()
	return r
}

func (r *run) wait(t *testing.T, ctx context.Context) error {
	t.Helper()
	defer r.cleanup()
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		require.FailNow(t, "command did not finish", r.out.String())
		return nil
	}
}

func TestSendReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coord := newCoordinator(t)
	sendRepo, recvRepo := newRepo(t), newRepo(t)

	payload := make([]byte, 128000)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, payload, 0o600))
	dst := t.TempDir()

	sender := start(ctx, loopbackOpener(coord, sendRepo),
		"send", src, "--loopback", "-s", "", "--linger", "500ms", "-l", "error")

	require.Eventually(t, func() bool {
		return strings.Contains(sender.out.String(), "Code: AB12CD")
	}, 10*time.Second, 20*time.Millisecond)

	receiver := start(ctx, loopbackOpener(coord, recvRepo),
		"receive", "ab12cd", "--loopback", "-s", "", "-o", dst, "-l", "error")

	require.NoError(t, receiver.wait(t, ctx), receiver.errOut.String())
	require.NoError(t, sender.wait(t, ctx), sender.errOut.String())

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Contains(t, receiver.out.String(), "a.txt: completed, saved to")
	assert.Contains(t, sender.out.String(), "a.txt: completed")

	sent, err := sendRepo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, models.RoleSend, sent[0].Role)
	assert.Equal(t, "AB12CD", sent[0].Code)
	assert.Equal(t, models.StatusCompleted, sent[0].Status)
	assert.Equal(t, int64(128000), sent[0].SizeBytes)

	received, err := recvRepo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, models.RoleReceive, received[0].Role)
	assert.Equal(t, "a.txt", received[0].FileName)
	assert.Equal(t, models.StatusCompleted, received[0].Status)
	assert.False(t, received[0].FinishedAt.IsZero())
}

func TestReceive_UnknownCodeRecordsFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := newRepo(t)
	r := start(ctx, loopbackOpener(newCoordinator(t), repo), "receive", "ZZZZZZ", "-s", "", "-l", "error")

	err := r.wait(t, ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, signaling.ErrRejected)
	assert.Contains(t, r.out.String(), "ZZZZZZ: rejected by server")

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusFailed, list[0].Status)
	assert.Equal(t, "ZZZZZZ", list[0].Code)
	assert.True(t, strings.HasPrefix(list[0].Error, "rejected by server"))
}

func TestSend_MissingFile(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	r := start(ctx, loopbackOpener(newCoordinator(t), repo), "send", filepath.Join(t.TempDir(), "nope"))

	assert.ErrorIs(t, r.wait(t, ctx), os.ErrNotExist)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is recorded before the file is opened")
}

func TestSend_DialFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	open := func(_ context.Context, c *config.Config, logger logging.Logger, out io.Writer) (*App, error) {
		dial := func(context.Context) (signaling.Signaler, error) {
			return nil, fmt.Errorf("connect: %w", common.ErrTransport)
		}
		return newApp(c, logger, dial, repo, out), nil
	}

	r := start(ctx, open, "send", src)
	assert.ErrorIs(t, r.wait(t, ctx), common.ErrTransport)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a.txt", list[0].FileName)
	assert.Equal(t, int64(5), list[0].SizeBytes)
	assert.Equal(t, models.StatusFailed, list[0].Status)
	assert.True(t, strings.HasPrefix(list[0].Error, "connection lost"))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &models.Transfer{ID: "1", Code: "AAAAAA", Role: models.RoleSend,
		FileName: "old.bin", SizeBytes: 2048, Status: models.StatusCompleted, StartedAt: base}))
	require.NoError(t, repo.Create(ctx, &models.Transfer{ID: "2", Code: "BBBBBB", Role: models.RoleReceive,
		Status: models.StatusFailed, Error: "timed out", StartedAt: base.Add(time.Hour)}))

	r := start(ctx, loopbackOpener(newCoordinator(t), repo), "history", "-n", "1", "-c", "ignored.yaml")
	require.NoError(t, r.wait(t, ctx))

	out := r.out.String()
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "BBBBBB")
	assert.Contains(t, out, "timed out")
	assert.NotContains(t, out, "old.bin")

	r = start(ctx, loopbackOpener(newCoordinator(t), repo), "history")
	require.NoError(t, r.wait(t, ctx))
	assert.Contains(t, r.out.String(), "old.bin")
	assert.Contains(t, r.out.String(), "2.0 KiB")
}

func TestHistory_Empty(t *testing.T) {
	ctx := context.Background()
	r := start(ctx, loopbackOpener(newCoordinator(t), newRepo(t)), "history")
	require.NoError(t, r.wait(t, ctx))
	assert.Equal(t, "no transfers yet\n", r.out.String())
}

func TestOpenerFailure(t *testing.T) {
	ctx := context.Background()
	open := func(context.Context, *config.Config, logging.Logger, io.Writer) (*App, error) {
		return nil, errors.New("no database")
	}
	r := start(ctx, open, "history")
	assert.EqualError(t, r.wait(t, ctx), "no database")
}

func TestNewApp_OpensHistoryWithoutDialing(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.HistoryDSN = filepath.Join(t.TempDir(), "h.db")
	cfg.ServerEndpointAddr = "127.0.0.1:1"

	var out bytes.Buffer
	app, err := NewApp(context.Background(), cfg, logging.Discard(), &out)
	require.NoError(t, err)
	require.NoError(t, app.History(context.Background(), 0))
	assert.Equal(t, "no transfers yet\n", out.String())
	require.NoError(t, app.Close())

	db, err := sql.Open("sqlite", cfg.HistoryDSN)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM transfers`).Scan(&n))
	assert.Zero(t, n)
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "completed"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("wait: %w", context.DeadlineExceeded), "timed out"},
		{fmt.Errorf("%w: not found", signaling.ErrRejected), "rejected by server: request rejected: not found"},
		{fmt.Errorf("%w: size mismatch", common.ErrProtocol), "transfer corrupted: protocol error: size mismatch"},
		{fmt.Errorf("%w: peer gone", common.ErrTransport), "connection lost: transport error: peer gone"},
		{peer.ErrBusy, "another transfer is in progress"},
		{errors.New("disk full"), "failed: disk full"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusText(tt.err))
	}
}

func TestProgressBar(t *testing.T) {
	orig := isTerminal
	t.Cleanup(func() { isTerminal = orig })

	var buf bytes.Buffer

	isTerminal = func(io.Writer) bool { return false }
	p := newProgressBar(&buf, "sending a.txt")
	p.report()(10, 100)
	p.end()
	assert.Empty(t, buf.String())

	isTerminal = func(io.Writer) bool { return true }
	p = newProgressBar(&buf, "sending a.txt")
	report := p.report()
	report(50, 100)
	report(50, 100)
	report(100, 100)
	p.end()
	assert.Equal(t, "\rsending a.txt  50% (50 B / 100 B)\rsending a.txt 100% (100 B / 100 B)\n", buf.String())
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "0 B", humanBytes(0))
	assert.Equal(t, "1023 B", humanBytes(1023))
	assert.Equal(t, "125.0 KiB", humanBytes(128000))
	assert.Equal(t, "1.5 MiB", humanBytes(3*512*1024))
}

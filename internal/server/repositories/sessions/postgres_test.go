package sessions

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var columns = []string{"code", "offer", "answer", "sender_id", "receiver_id", "file_name", "file_size",
	"mime_type", "status", "sender_candidates", "receiver_candidates", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(db, WithClock(func() time.Time { return fixedNow }), WithCandidateLimit(4)), mock
}

func sessionRow(code, status string, offer, answer, receiver driver.Value) *sqlmock.Rows {
	return sqlmock.NewRows(columns).AddRow(code, offer, answer, "s1", receiver, "a.txt", int64(128000),
		"text/plain", status, []byte(`[{"c":1}]`), []byte(`[]`), fixedNow, fixedNow)
}

func TestExists(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT EXISTS \(SELECT 1 FROM sessions WHERE code = \$1\)$`).
		WithArgs("AB12CD").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate(t *testing.T) {
	q := `(?s)^INSERT INTO sessions \(code, offer, sender_id, file_name, file_size, mime_type, status, created_at, updated_at\)\s+VALUES \(\$1, \$2::jsonb, \$3, \$4, \$5, \$6, 'pending', \$7, \$7\)$`
	meta := models.FileMetadata{Name: "a.txt", SizeBytes: 128000, MimeType: "text/plain"}

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).
			WithArgs("AB12CD", nil, "s1", "a.txt", int64(128000), "text/plain", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := &models.Session{Code: "AB12CD", SenderID: "s1", FileMetadata: meta}
		require.NoError(t, repo.Create(context.Background(), s))
		assert.Equal(t, models.StatusPending, s.Status)
		assert.Equal(t, fixedNow, s.CreatedAt)
		assert.NotNil(t, s.SenderCandidates)
	})

	t.Run("unique violation", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(context.Background(), &models.Session{Code: "AB12CD", SenderID: "s1", FileMetadata: meta})
		assert.ErrorIs(t, err, common.ErrDuplicateCode)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(errors.New("db down"))

		err := repo.Create(context.Background(), &models.Session{Code: "AB12CD", SenderID: "s1", FileMetadata: meta})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: db down")
	})
}

func TestGet(t *testing.T) {
	q := `(?s)^SELECT code, offer, answer, .* FROM sessions WHERE code = \$1$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("AB12CD").
			WillReturnRows(sessionRow("AB12CD", "active", []byte(`{"sdp":"o"}`), nil, "r1"))

		s, err := repo.Get(context.Background(), "AB12CD")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, s.Status)
		assert.Equal(t, "r1", s.ReceiverID)
		assert.JSONEq(t, `{"sdp":"o"}`, string(s.Offer))
		assert.Nil(t, s.Answer)
		require.Len(t, s.SenderCandidates, 1)
		assert.JSONEq(t, `{"c":1}`, string(s.SenderCandidates[0]))
		assert.Empty(t, s.ReceiverCandidates)
		assert.Equal(t, int64(128000), s.FileMetadata.SizeBytes)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("NOPE00").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "NOPE00")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestSetOffer(t *testing.T) {
	q := `(?s)^UPDATE sessions SET offer = \$3::jsonb, status = 'connecting', updated_at = \$4\s+WHERE code = \$1 AND sender_id = \$2 AND status = 'pending'\s+RETURNING code, .*updated_at$`

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("AB12CD", "s1", `{"sdp":"o"}`, fixedNow).
			WillReturnRows(sessionRow("AB12CD", "connecting", []byte(`{"sdp":"o"}`), nil, nil))

		s, err := repo.SetOffer(context.Background(), "AB12CD", "s1", json.RawMessage(`{"sdp":"o"}`))
		require.NoError(t, err)
		assert.Equal(t, models.StatusConnecting, s.Status)
		assert.Empty(t, s.ReceiverID)
	})

	t.Run("second offer matches no row", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.SetOffer(context.Background(), "AB12CD", "s1", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestAppendCandidate(t *testing.T) {
	t.Run("sender side", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`(?s)^UPDATE sessions SET sender_candidates = sender_candidates \|\| jsonb_build_array\(\$2::jsonb\), updated_at = \$3\s+WHERE code = \$1 AND status IN \('pending', 'connecting', 'active'\) AND jsonb_array_length\(sender_candidates\) < \$4$`).
			WithArgs("AB12CD", `{"c":2}`, fixedNow, int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.AppendCandidate(context.Background(), "AB12CD", models.SideSender, json.RawMessage(`{"c":2}`)))
	})

	t.Run("receiver side, no row", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`(?s)^UPDATE sessions SET receiver_candidates = receiver_candidates`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.AppendCandidate(context.Background(), "AB12CD", models.SideReceiver, json.RawMessage(`{}`))
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("unknown side", func(t *testing.T) {
		repo, _ := newRepoWithMock(t)
		err := repo.AppendCandidate(context.Background(), "AB12CD", models.Side("both"), json.RawMessage(`{}`))
		assert.ErrorIs(t, err, common.ErrorIncorrectMetadata)
	})

	t.Run("unexpected rows", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`(?s)^UPDATE sessions SET sender_candidates`).WillReturnResult(sqlmock.NewResult(0, 2))

		err := repo.AppendCandidate(context.Background(), "AB12CD", models.SideSender, json.RawMessage(`{}`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestJoin(t *testing.T) {
	update := `(?s)^UPDATE sessions SET receiver_id = COALESCE\(receiver_id, \$2\), status = 'active', updated_at = \$3\s+WHERE code = \$1 AND status IN \('connecting', 'active'\) AND \(receiver_id IS NULL OR receiver_id = \$2\)\s+RETURNING code, .*$`
	classify := `(?s)^SELECT status, receiver_id FROM sessions WHERE code = \$1$`

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WithArgs("AB12CD", "r1", fixedNow).
			WillReturnRows(sessionRow("AB12CD", "active", []byte(`{"sdp":"o"}`), nil, "r1"))

		s, err := repo.Join(context.Background(), "AB12CD", "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", s.ReceiverID)
		assert.Equal(t, models.StatusActive, s.Status)
	})

	t.Run("held by another receiver", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectQuery(classify).WithArgs("AB12CD").
			WillReturnRows(sqlmock.NewRows([]string{"status", "receiver_id"}).AddRow("active", "r1"))

		_, err := repo.Join(context.Background(), "AB12CD", "r2")
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("still pending", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectQuery(classify).
			WillReturnRows(sqlmock.NewRows([]string{"status", "receiver_id"}).AddRow("pending", nil))

		_, err := repo.Join(context.Background(), "AB12CD", "r2")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("completed, same holder", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectQuery(classify).
			WillReturnRows(sqlmock.NewRows([]string{"status", "receiver_id"}).AddRow("completed", "r1"))

		_, err := repo.Join(context.Background(), "AB12CD", "r2")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("unknown code", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectQuery(classify).WillReturnError(sql.ErrNoRows)

		_, err := repo.Join(context.Background(), "ZZZZZZ", "r1")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestSetAnswer(t *testing.T) {
	q := `(?s)^UPDATE sessions SET answer = \$3::jsonb, updated_at = \$4\s+WHERE code = \$1 AND receiver_id = \$2 AND status = 'active' AND answer IS NULL$`

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).WithArgs("AB12CD", "r1", `{"sdp":"a"}`, fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("AB12CD", "r1", `{"sdp":"a"}`, fixedNow).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetAnswer(context.Background(), "AB12CD", "r1", json.RawMessage(`{"sdp":"a"}`)))
	assert.ErrorIs(t, repo.SetAnswer(context.Background(), "AB12CD", "r1", json.RawMessage(`{"sdp":"a"}`)), common.ErrorNotFound)
}

func TestComplete(t *testing.T) {
	q := `(?s)^UPDATE sessions SET status = 'completed', updated_at = \$2\s+WHERE code = \$1 AND status IN \('pending', 'connecting', 'active', 'completed'\)$`

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).WithArgs("AB12CD", fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("NOPE00", fixedNow).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("AB12CD", fixedNow).WillReturnError(errors.New("conn reset"))

	require.NoError(t, repo.Complete(context.Background(), "AB12CD"))
	assert.ErrorIs(t, repo.Complete(context.Background(), "NOPE00"), common.ErrorNotFound)
	assert.ErrorContains(t, repo.Complete(context.Background(), "AB12CD"), "db error")
}

func TestSweep(t *testing.T) {
	q := `(?s)^DELETE FROM sessions\s+WHERE status IN \(\$2, \$3\) AND updated_at < \$1\s+RETURNING code, .*$`
	cutoff := fixedNow.Add(-2 * time.Hour)

	t.Run("pending and completed", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		rows := sessionRow("AAAAAA", "pending", nil, nil, nil).
			AddRow("BBBBBB", []byte(`{}`), []byte(`{}`), "s2", "r2", "b.bin", int64(1), "application/octet-stream",
				"completed", []byte(`[]`), []byte(`[]`), fixedNow, fixedNow)
		mock.ExpectQuery(q).WithArgs(cutoff, "pending", "completed").WillReturnRows(rows)

		swept, err := repo.Sweep(context.Background(), cutoff)
		require.NoError(t, err)
		require.Len(t, swept, 2)
		assert.Equal(t, "AAAAAA", swept[0].Code)
		assert.Equal(t, models.StatusCompleted, swept[1].Status)
	})

	t.Run("abandoned", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs(cutoff, "connecting", "active").WillReturnRows(sqlmock.NewRows(columns))

		swept, err := repo.SweepAbandoned(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Empty(t, swept)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(errors.New("db down"))

		_, err := repo.Sweep(context.Background(), cutoff)
		assert.ErrorContains(t, err, "db error")
	})
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestGetUserByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	query := regexp.QuoteMeta(`SELECT username, avatar_url FROM users WHERE id = $1`)

	mock.ExpectQuery(query).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"username", "avatar_url"}).AddRow("ann", nil))
	user, err := repo.GetUserByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: 3, Username: "ann"}, *user)

	mock.ExpectQuery(query).WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"username", "avatar_url"}))
	_, err = repo.GetUserByID(context.Background(), 4)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = repo.GetUserByID(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAreFriends(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS \(\s*SELECT 1 FROM friends`).WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewFriendshipRepo(db).AreFriends(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsGroupMemberPropagatesFaults(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM group_members`).WithArgs(int64(10), int64(9)).
		WillReturnError(errors.New("connection reset"))

	_, err := NewGroupMemberRepo(db).IsGroupMember(context.Background(), 10, 9)
	assert.EqualError(t, err, "connection reset")
}

func TestMarkReadByOtherUserIsNoop(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`UPDATE private_messages\s+SET is_read = TRUE`).WithArgs(int64(5), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"read_at"}))

	_, ok, err := NewPrivateMessageRepo(db).MarkRead(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

var privateColumns = []string{
	"id", "sender_id", "receiver_id", "sender_username", "receiver_username",
	"content", "message_type", "is_read", "read_at", "reply_to_id",
	"file_url", "public_id", "resource_type", "voice_duration", "file_size",
	"created_at", "updated_at",
}

func TestPrivateDeleteChecksOwner(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM private_messages m`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(privateColumns).AddRow(
			int64(5), int64(3), int64(7), "ann", "bob",
			"hi", "text", false, nil, nil,
			nil, nil, nil, nil, nil,
			now, now,
		))

	_, err := NewPrivateMessageRepo(db).DeleteMessage(context.Background(), 5, 7)
	assert.ErrorIs(t, err, domain.ErrNotMessageOwner)
}

func TestGroupRecordSeenTwice(t *testing.T) {
	db, mock := newMock(t)
	seenAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO group_message_seen`).WithArgs(int64(8), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"seen_at"}))
	mock.ExpectQuery(`SELECT seen_at FROM group_message_seen`).WithArgs(int64(8), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"seen_at"}).AddRow(seenAt))

	already, at, err := NewGroupMessageRepo(db).RecordSeen(context.Background(), 8, 7)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, seenAt, at)
}

func TestGroupMediaReferences(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM group_messages WHERE public_id = \$1`).WithArgs("groups/10/messages/a.png").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := NewGroupMessageRepo(db).MediaReferences(context.Background(), "groups/10/messages/a.png")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTxManager(t *testing.T) {
	t.Run("commit joins nested calls", func(t *testing.T) {
		db, mock := newMock(t)
		tm := NewTxManager(logging.Nop(), db)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE group_messages SET content`).WithArgs(int64(8), "edited").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectCommit()

		repo := NewGroupMessageRepo(db)
		err := tm.WithTx(context.Background(), func(ctx context.Context) error {
			return tm.WithTx(ctx, func(ctx context.Context) error {
				_, err := repo.UpdateContent(ctx, 8, "edited")
				return err
			})
		})
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		db, mock := newMock(t)
		tm := NewTxManager(logging.Nop(), db)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE group_messages SET content`).WithArgs(int64(8), "edited").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
		mock.ExpectRollback()

		err := tm.WithTx(context.Background(), func(ctx context.Context) error {
			_, err := NewGroupMessageRepo(db).UpdateContent(ctx, 8, "edited")
			return err
		})
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := NewTxManager(logging.Nop(), db).WithTx(context.Background(), func(context.Context) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorContains(t, err, "begin tx")
	})
}

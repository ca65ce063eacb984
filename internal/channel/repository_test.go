package channel

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	channelID = "0190b5a0-0000-7000-8000-000000000001"
	viewerID  = "0190b5a0-0000-7000-8000-000000000002"
	countsSQL = "SELECT (SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1)"
	deleteSQL = "DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2"
	insertSQL = "INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestCountsWithViewer(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(countsSQL)).
		WithArgs(channelID, viewerID).
		WillReturnRows(sqlmock.NewRows([]string{"subscribers", "subscribed_to", "is_subscribed"}).AddRow(12, 3, true))

	counts, err := repo.Counts(context.Background(), channelID, viewerID)
	require.NoError(t, err)
	assert.Equal(t, Counts{Subscribers: 12, SubscribedTo: 3, IsSubscribed: true}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountsAnonymousViewer(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(countsSQL)).
		WithArgs(channelID, nil).
		WillReturnRows(sqlmock.NewRows([]string{"subscribers", "subscribed_to", "is_subscribed"}).AddRow(1, 0, false))

	counts, err := repo.Counts(context.Background(), channelID, "")
	require.NoError(t, err)
	assert.False(t, counts.IsSubscribed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleUnsubscribes(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteSQL)).
		WithArgs(viewerID, channelID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	subscribed, err := repo.Toggle(context.Background(), viewerID, channelID)
	require.NoError(t, err)
	assert.False(t, subscribed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleSubscribes(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteSQL)).
		WithArgs(viewerID, channelID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs(sqlmock.AnyArg(), viewerID, channelID, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	subscribed, err := repo.Toggle(context.Background(), viewerID, channelID)
	require.NoError(t, err)
	assert.True(t, subscribed)
	require.NoError(t, mock.ExpectationsWereMet())
}

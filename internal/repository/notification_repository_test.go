package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRCMora/jms-api/internal/models"
)

func TestNotificationRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	batch := []models.Notification{
		{UserID: "r1", SubmissionID: "sub-1", Event: models.EventFeedbackRequested, Message: "Feedback requested"},
		{UserID: "r2", SubmissionID: "sub-1", Event: models.EventFeedbackRequested, Message: "Feedback requested"},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	assert.Equal(t, models.NotificationUnread, batch[0].Status)
	assert.NotEmpty(t, batch[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListUnread(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 10 OFFSET 0")).
		WithArgs("u1", models.NotificationUnread).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "submission_id", "event", "message", "payload", "status", "created_at", "read_at"}).
			AddRow("n1", "u1", "sub-1", "DECISION_READY", "Decision ready", `{}`, "UNREAD", time.Now(), nil))

	list, err := repo.List(context.Background(), models.NotificationFilter{UserID: "u1", UnreadOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ReadAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadForeignUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $1, read_at = $2 WHERE id = $3 AND user_id = $4")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "n1", "someone-else", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

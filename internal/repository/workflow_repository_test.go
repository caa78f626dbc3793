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

func TestApplyFeedbackWithCollectionTransition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	submission := &models.Submission{
		ID:          "sub-1",
		Status:      models.StatusReviewed,
		ReviewerIDs: []string{"r1"},
		Round:       1,
		Version:     7,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1")).
		WithArgs(models.StatusReviewed, sqlmock.AnyArg(), 1, "", "", nil, sqlmock.AnyArg(), "sub-1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_feedback")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_status_history")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Apply(context.Background(), Change{
		Submission:      submission,
		ExpectedVersion: 7,
		ActorID:         "r1",
		Feedback:        &models.Feedback{SubmissionID: "sub-1", ReviewerID: "r1", Round: 1, Text: "ok", Choice: models.ChoiceApprove},
		History: []models.StatusHistory{
			{Trigger: "ALL_FEEDBACK_COLLECTED", FromStatus: models.StatusUnderReview, ToStatus: models.StatusReviewed, ActorID: "r1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), submission.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyVersionConflictRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	submission := &models.Submission{ID: "sub-1", Status: models.StatusUnderReview, Version: 2}
	err := repo.Apply(context.Background(), Change{Submission: submission, ExpectedVersion: 2})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(2), submission.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReassignmentPurgesAndReplaces(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submission_feedback WHERE submission_id = $1 AND reviewer_id = ANY($2)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_assignments SET active = FALSE")).
		WithArgs("sub-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_assignments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_assignments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_status_history")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Apply(context.Background(), Change{
		Submission: &models.Submission{
			ID:          "sub-1",
			Status:      models.StatusUnderReview,
			ReviewerIDs: []string{"r1", "r3"},
			Round:       1,
		},
		ExpectedVersion:    3,
		ActorID:            "editor-1",
		ReplaceAssignments: true,
		PurgeReviewers:     []string{"r2"},
		History:            []models.StatusHistory{{Trigger: "REASSIGN_REVIEWERS"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStorageFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submission_feedback WHERE submission_id = $1")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO consolidated_decisions")).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	submission := &models.Submission{ID: "sub-1", Status: models.StatusNeedsRevision, Round: 2, Version: 9}
	err := repo.Apply(context.Background(), Change{
		Submission:      submission,
		ExpectedVersion: 9,
		ClearFeedback:   true,
		Decision:        &models.ConsolidatedDecision{SubmissionID: "sub-1", Round: 1, Choice: models.ChoiceNeedsRevision},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, int64(9), submission.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRequiresSubmission(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	assert.Error(t, repo.Apply(context.Background(), Change{}))
}

func TestReviewQueries(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM consolidated_decisions WHERE submission_id = $1 AND round = $2")).
		WithArgs("sub-1", 2).
		WillReturnError(sql.ErrNoRows)
	_, err := repo.DecisionForRound(context.Background(), "sub-1", 2)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("FROM submission_feedback WHERE submission_id = $1")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"submission_id", "reviewer_id", "round", "text", "choice", "submitted_at"}).
			AddRow("sub-1", "r1", 2, "fine", "APPROVE", time.Now()))
	feedback, err := repo.ListFeedback(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, models.ChoiceApprove, feedback[0].Choice)

	mock.ExpectQuery(regexp.QuoteMeta("FROM consolidated_decisions WHERE submission_id = $1 ORDER BY round ASC")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "submission_id", "round", "editor_id", "text", "choice", "feedback_summary", "created_at"}).
			AddRow("d1", "sub-1", 1, "editor-1", "revise", "NEEDS_REVISION", []byte(`{"total":1,"needsRevision":1}`), time.Now()))
	decisions, err := repo.ListDecisions(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.JSONEq(t, `{"total":1,"needsRevision":1}`, string(decisions[0].Summary))
	assert.NoError(t, mock.ExpectationsWereMet())
}

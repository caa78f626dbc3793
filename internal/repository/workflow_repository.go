package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/JRCMora/jms-api/internal/models"
)

// ErrVersionConflict is returned when the stored submission version no longer
// matches the one the change was computed from.
var ErrVersionConflict = errors.New("submission version conflict")

// Change is one atomic workflow write. Submission carries the new state and
// ExpectedVersion the version it was derived from.
type Change struct {
	Submission      *models.Submission
	ExpectedVersion int64
	ActorID         string
	History         []models.StatusHistory

	// ReplaceAssignments deactivates the current rows and inserts one active
	// row per reviewer in Submission.ReviewerIDs.
	ReplaceAssignments bool
	// ClearFeedback removes all feedback before Feedback is written.
	ClearFeedback bool
	// PurgeReviewers removes feedback held by these reviewers.
	PurgeReviewers []string
	Feedback       *models.Feedback
	Decision       *models.ConsolidatedDecision
}

// Apply writes the change in a single transaction guarded by the version
// compare-and-set. On success Submission.Version and UpdatedAt are advanced.
func (r *SubmissionRepository) Apply(ctx context.Context, change Change) (err error) {
	submission := change.Submission
	if submission == nil || submission.ID == "" {
		return fmt.Errorf("apply workflow change: submission is required")
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE submissions SET status = $1, reviewer_ids = $2, round = $3, file_ref = $4, file_name = $5,
	publication_date = $6, version = version + 1, updated_at = $7
	WHERE id = $8 AND version = $9`
	result, err := tx.ExecContext(ctx, updateQuery,
		submission.Status,
		pq.Array([]string(submission.ReviewerIDs)),
		submission.Round,
		submission.FileRef,
		submission.FileName,
		submission.PublicationDate,
		now,
		submission.ID,
		change.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update submission state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("submission state rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	if change.ClearFeedback {
		if _, err = tx.ExecContext(ctx, `DELETE FROM submission_feedback WHERE submission_id = $1`, submission.ID); err != nil {
			return fmt.Errorf("clear feedback: %w", err)
		}
	}
	if len(change.PurgeReviewers) > 0 {
		const purgeQuery = `DELETE FROM submission_feedback WHERE submission_id = $1 AND reviewer_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, purgeQuery, submission.ID, pq.Array(change.PurgeReviewers)); err != nil {
			return fmt.Errorf("purge feedback: %w", err)
		}
	}
	if change.Feedback != nil {
		if err = upsertFeedback(ctx, tx, change.Feedback); err != nil {
			return err
		}
	}
	if change.ReplaceAssignments {
		if err = replaceAssignments(ctx, tx, submission, change.ActorID, now); err != nil {
			return err
		}
	}
	if change.Decision != nil {
		if err = insertDecision(ctx, tx, change.Decision, now); err != nil {
			return err
		}
	}
	for i := range change.History {
		change.History[i].SubmissionID = submission.ID
		if err = insertHistory(ctx, tx, &change.History[i], now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow change: %w", err)
	}
	submission.Version = change.ExpectedVersion + 1
	submission.UpdatedAt = now
	return nil
}

func upsertFeedback(ctx context.Context, tx *sqlx.Tx, feedback *models.Feedback) error {
	if feedback.SubmittedAt.IsZero() {
		feedback.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submission_feedback (submission_id, reviewer_id, round, text, choice, submitted_at)
	VALUES (:submission_id, :reviewer_id, :round, :text, :choice, :submitted_at)
	ON CONFLICT (submission_id, reviewer_id)
	DO UPDATE SET round = EXCLUDED.round, text = EXCLUDED.text, choice = EXCLUDED.choice, submitted_at = EXCLUDED.submitted_at`
	if _, err := tx.NamedExecContext(ctx, query, feedback); err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}
	return nil
}

func replaceAssignments(ctx context.Context, tx *sqlx.Tx, submission *models.Submission, actorID string, now time.Time) error {
	const deactivateQuery = `UPDATE submission_assignments SET active = FALSE, deactivated_at = $2
	WHERE submission_id = $1 AND active = TRUE`
	if _, err := tx.ExecContext(ctx, deactivateQuery, submission.ID, now); err != nil {
		return fmt.Errorf("deactivate assignments: %w", err)
	}
	const insertQuery = `INSERT INTO submission_assignments
	(id, submission_id, reviewer_id, round, active, assigned_by, assigned_at, deactivated_at)
	VALUES (:id, :submission_id, :reviewer_id, :round, :active, :assigned_by, :assigned_at, :deactivated_at)`
	for _, reviewerID := range submission.ReviewerIDs {
		assignment := models.ReviewerAssignment{
			ID:           uuid.NewString(),
			SubmissionID: submission.ID,
			ReviewerID:   reviewerID,
			Round:        submission.Round,
			Active:       true,
			AssignedBy:   actorID,
			AssignedAt:   now,
		}
		if _, err := tx.NamedExecContext(ctx, insertQuery, assignment); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}

func insertDecision(ctx context.Context, tx *sqlx.Tx, decision *models.ConsolidatedDecision, now time.Time) error {
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = now
	}
	const query = `INSERT INTO consolidated_decisions (id, submission_id, round, editor_id, text, choice, feedback_summary, created_at)
	VALUES (:id, :submission_id, :round, :editor_id, :text, :choice, :feedback_summary, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, decision); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistory, now time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	const query = `INSERT INTO submission_status_history (id, submission_id, trigger, from_status, to_status, actor_id, note, created_at)
	VALUES (:id, :submission_id, :trigger, :from_status, :to_status, :actor_id, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

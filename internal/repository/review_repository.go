package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JRCMora/jms-api/internal/models"
)

// ListFeedback returns the live feedback of a submission ordered by submission time.
func (r *SubmissionRepository) ListFeedback(ctx context.Context, submissionID string) ([]models.Feedback, error) {
	const query = `SELECT submission_id, reviewer_id, round, text, choice, submitted_at
	FROM submission_feedback WHERE submission_id = $1 ORDER BY submitted_at ASC`
	var feedback []models.Feedback
	if err := r.db.SelectContext(ctx, &feedback, query, submissionID); err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return feedback, nil
}

// ListDecisions returns every consolidated decision, oldest round first.
func (r *SubmissionRepository) ListDecisions(ctx context.Context, submissionID string) ([]models.ConsolidatedDecision, error) {
	const query = `SELECT id, submission_id, round, editor_id, text, choice, feedback_summary, created_at
	FROM consolidated_decisions WHERE submission_id = $1 ORDER BY round ASC, created_at ASC`
	var decisions []models.ConsolidatedDecision
	if err := r.db.SelectContext(ctx, &decisions, query, submissionID); err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return decisions, nil
}

// DecisionForRound returns the decision made for the given round.
func (r *SubmissionRepository) DecisionForRound(ctx context.Context, submissionID string, round int) (*models.ConsolidatedDecision, error) {
	const query = `SELECT id, submission_id, round, editor_id, text, choice, feedback_summary, created_at
	FROM consolidated_decisions WHERE submission_id = $1 AND round = $2 ORDER BY created_at DESC LIMIT 1`
	var decision models.ConsolidatedDecision
	if err := r.db.GetContext(ctx, &decision, query, submissionID, round); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get decision for round: %w", err)
	}
	return &decision, nil
}

// History returns the status history of a submission in order of application.
func (r *SubmissionRepository) History(ctx context.Context, submissionID string) ([]models.StatusHistory, error) {
	const query = `SELECT id, submission_id, trigger, from_status, to_status, actor_id, note, created_at
	FROM submission_status_history WHERE submission_id = $1 ORDER BY created_at ASC`
	var history []models.StatusHistory
	if err := r.db.SelectContext(ctx, &history, query, submissionID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return history, nil
}

// ListAssignments returns all assignment rows, active and historical.
func (r *SubmissionRepository) ListAssignments(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error) {
	const query = `SELECT id, submission_id, reviewer_id, round, active, assigned_by, assigned_at, deactivated_at
	FROM submission_assignments WHERE submission_id = $1 ORDER BY assigned_at ASC`
	var assignments []models.ReviewerAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, submissionID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/JRCMora/jms-api/internal/models"
)

const submissionColumns = `id, title, author_names, submitted_by, status, reviewer_ids, rubric_id,
       publication_date, file_ref, file_name, round, version, created_at, updated_at`

// SubmissionRepository persists submissions and everything hanging off them:
// status history, reviewer assignments, feedback and consolidated decisions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new submission together with its intake history row.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission, intake models.StatusHistory) (err error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = submission.CreatedAt
	if submission.Round == 0 {
		submission.Round = 1
	}
	if submission.Version == 0 {
		submission.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO submissions
	(id, title, author_names, submitted_by, status, reviewer_ids, rubric_id, publication_date, file_ref, file_name, round, version, created_at, updated_at)
	VALUES (:id, :title, :author_names, :submitted_by, :status, :reviewer_ids, :rubric_id, :publication_date, :file_ref, :file_name, :round, :version, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}

	intake.SubmissionID = submission.ID
	if err = insertHistory(ctx, tx, &intake, submission.CreatedAt); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &submission, nil
}

// List returns submissions matching the filter, most recently updated first.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + submissionColumns + ` FROM submissions`)

	where, args := submissionConditions(filter)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY updated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// CountByStatus returns the status histogram for the scope of the filter.
// Statuses, Limit and Offset are ignored.
func (r *SubmissionRepository) CountByStatus(ctx context.Context, filter models.SubmissionFilter) ([]models.StatusCount, error) {
	filter.Statuses = nil
	where, args := submissionConditions(filter)
	query := `SELECT status, COUNT(*) AS count FROM submissions` + where + ` GROUP BY status`

	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count submissions by status: %w", err)
	}
	return counts, nil
}

// Delete removes a submission and its dependents, provided the stored version
// still matches.
func (r *SubmissionRepository) Delete(ctx context.Context, id string, expectedVersion int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{
		"submission_feedback",
		"consolidated_decisions",
		"submission_assignments",
		"submission_status_history",
	} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE submission_id = $1", table), id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete submission rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete submission: %w", err)
	}
	return nil
}

func submissionConditions(filter models.SubmissionFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(reviewer_ids)", len(args)))
	}
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		conditions = append(conditions, fmt.Sprintf("submitted_by = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

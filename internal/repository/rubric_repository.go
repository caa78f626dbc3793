package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/JRCMora/jms-api/internal/models"
)

// RubricRepository persists review rubrics.
type RubricRepository struct {
	db *sqlx.DB
}

// NewRubricRepository constructs the repository.
func NewRubricRepository(db *sqlx.DB) *RubricRepository {
	return &RubricRepository{db: db}
}

// Create inserts a rubric.
func (r *RubricRepository) Create(ctx context.Context, rubric *models.Rubric) error {
	if rubric.ID == "" {
		rubric.ID = uuid.NewString()
	}
	if rubric.CreatedAt.IsZero() {
		rubric.CreatedAt = time.Now().UTC()
	}
	if len(rubric.Criteria) == 0 {
		rubric.Criteria = []byte(`[]`)
	}
	const query = `INSERT INTO rubrics (id, title, description, criteria, created_by, created_at)
	VALUES (:id, :title, :description, :criteria, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rubric); err != nil {
		return fmt.Errorf("create rubric: %w", err)
	}
	return nil
}

// FindByID returns a rubric by identifier.
func (r *RubricRepository) FindByID(ctx context.Context, id string) (*models.Rubric, error) {
	const query = `SELECT id, title, description, criteria, created_by, created_at FROM rubrics WHERE id = $1`
	var rubric models.Rubric
	if err := r.db.GetContext(ctx, &rubric, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find rubric: %w", err)
	}
	return &rubric, nil
}

// List returns all rubrics, newest first.
func (r *RubricRepository) List(ctx context.Context) ([]models.Rubric, error) {
	const query = `SELECT id, title, description, criteria, created_by, created_at FROM rubrics ORDER BY created_at DESC`
	var rubrics []models.Rubric
	if err := r.db.SelectContext(ctx, &rubrics, query); err != nil {
		return nil, fmt.Errorf("list rubrics: %w", err)
	}
	return rubrics, nil
}

// Delete removes a rubric. Submissions referencing it keep a dangling id.
func (r *RubricRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rubrics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rubric: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rubric rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/JRCMora/jms-api/internal/models"
)

const userColumns = `id, email, full_name, role, active, created_at, updated_at`

// UserRepository provides database access to journal users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByIDs returns the users among ids that exist. Missing ids are simply absent.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	return users, nil
}

// FindByRole returns the active users carrying one of the roles.
func (r *UserRepository) FindByRole(ctx context.Context, roles ...models.UserRole) ([]models.User, error) {
	if len(roles) == 0 {
		return []models.User{}, nil
	}
	raw := make([]string, len(roles))
	for i, role := range roles {
		raw[i] = string(role)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE active = TRUE AND role = ANY($1) ORDER BY full_name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(raw)); err != nil {
		return nil, fmt.Errorf("find users by role: %w", err)
	}
	return users, nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY full_name ASC LIMIT %d OFFSET %d", userColumns, baseQuery, pageSize, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// ListReviewersWithWorkload returns active reviewers with their count of
// active assignments across all submissions.
func (r *UserRepository) ListReviewersWithWorkload(ctx context.Context) ([]models.ReviewerWorkload, error) {
	const query = `SELECT u.id, u.email, u.full_name, u.role, u.active, u.created_at, u.updated_at,
       COUNT(a.id) AS active_assignments
	FROM users u
	LEFT JOIN submission_assignments a ON a.reviewer_id = u.id AND a.active = TRUE
	WHERE u.role = $1 AND u.active = TRUE
	GROUP BY u.id
	ORDER BY u.full_name ASC`
	var reviewers []models.ReviewerWorkload
	if err := r.db.SelectContext(ctx, &reviewers, query, models.RoleReviewer); err != nil {
		return nil, fmt.Errorf("list reviewers with workload: %w", err)
	}
	return reviewers, nil
}

// Deactivate marks the user inactive. sql.ErrNoRows reports an unknown id.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate user rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Upsert inserts the user or refreshes its profile when the email already
// exists. user.ID is set to the stored row's id.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, full_name, role, active, created_at, updated_at)
	VALUES (:id, :email, :full_name, :role, :active, :created_at, :updated_at)
	ON CONFLICT (email) DO UPDATE SET full_name = EXCLUDED.full_name, role = EXCLUDED.role,
	active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&user.ID); err != nil {
			return fmt.Errorf("scan upserted user: %w", err)
		}
	}
	return rows.Err()
}

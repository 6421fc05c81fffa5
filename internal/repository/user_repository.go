package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classtrack-api/internal/models"
)

const userColumns = "id, version, email, password_hash, full_name, role, active, reset_token, last_login, created_at, updated_at"

// UserRepository handles persistence for user records using the same
// conditional-write discipline as classrooms.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user with version 1.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Version = 1
	user.CreatedAt = now
	user.UpdatedAt = now
	query := `INSERT INTO users (id, version, email, password_hash, full_name, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Version, user.Email, user.PasswordHash, user.FullName, user.Role, user.Active, user.CreatedAt, user.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID fetches a single user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// FindByEmail fetches a user by email for authentication.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userColumns)
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// List returns users matching the filter along with the total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Role != nil {
		where = append(where, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")
	_, size, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM users WHERE %s ORDER BY full_name ASC LIMIT %d OFFSET %d", userColumns, whereClause, size, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM users WHERE %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Update applies the patch as a single conditional write. The password hash
// and reset token never pass through here; they change via dedicated flows.
func (r *UserRepository) Update(ctx context.Context, id string, expectedVersion int64, patch models.UserPatch) (*models.User, error) {
	set := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	add("updated_at", time.Now().UTC())
	set = append(set, "version = version + 1")

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d AND version = $%d RETURNING %s",
		strings.Join(set, ", "), len(args)+1, len(args)+2, userColumns)
	args = append(args, id, expectedVersion)

	var user models.User
	err := r.db.GetContext(ctx, &user, query, args...)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return nil, r.resolveMiss(ctx, id)
}

// Delete removes the user under the compare-and-swap discipline.
func (r *UserRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1 AND version = $2", id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if affected == 0 {
		return r.resolveMiss(ctx, id)
	}
	return nil
}

// UpdateLastLogin stamps the last successful login. This touches a field no
// interactive editor writes, so it bypasses the version counter.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE users SET last_login = $1 WHERE id = $2", ts, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (r *UserRepository) resolveMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", id); err != nil {
		return fmt.Errorf("probe user: %w", err)
	}
	if exists {
		return ErrVersionConflict
	}
	return sql.ErrNoRows
}

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
	"github.com/lib/pq"

	"github.com/noah-isme/classtrack-api/internal/models"
)

const classroomColumns = "id, version, name, location, capacity, schedules, active, created_at, updated_at"

// ClassroomRepository handles persistence for classroom records.
//
// All mutations are conditional writes: the WHERE clause carries both the id
// and the expected version, so the version check and the field update commit
// as one atomic statement. There is no read-then-write window.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// Create inserts a classroom with version 1.
func (r *ClassroomRepository) Create(ctx context.Context, room *models.Classroom) error {
	now := time.Now().UTC()
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.Version = 1
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.Schedules == nil {
		room.Schedules = pq.StringArray{}
	}
	query := `INSERT INTO classrooms (id, version, name, location, capacity, schedules, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, room.ID, room.Version, room.Name, room.Location, room.Capacity, room.Schedules, room.Active, room.CreatedAt, room.UpdatedAt); err != nil {
		return fmt.Errorf("create classroom: %w", err)
	}
	return nil
}

// GetByID fetches a single classroom.
func (r *ClassroomRepository) GetByID(ctx context.Context, id string) (*models.Classroom, error) {
	var room models.Classroom
	query := fmt.Sprintf("SELECT %s FROM classrooms WHERE id = $1", classroomColumns)
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, fmt.Errorf("get classroom: %w", err)
	}
	return &room, nil
}

// List returns classrooms matching the filter along with the total count.
func (r *ClassroomRepository) List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Location != "" {
		where = append(where, fmt.Sprintf("location = $%d", len(args)+1))
		args = append(args, filter.Location)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")
	_, size, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM classrooms WHERE %s ORDER BY name ASC LIMIT %d OFFSET %d", classroomColumns, whereClause, size, offset)
	var rooms []models.Classroom
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classrooms: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM classrooms WHERE %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classrooms: %w", err)
	}
	return rooms, total, nil
}

// Update applies the patch only when the stored version equals
// expectedVersion, bumping the version by 1 in the same statement. It returns
// ErrVersionConflict when the row exists at a different version and
// sql.ErrNoRows when the id is unknown.
func (r *ClassroomRepository) Update(ctx context.Context, id string, expectedVersion int64, patch models.ClassroomPatch) (*models.Classroom, error) {
	set := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Capacity != nil {
		add("capacity", *patch.Capacity)
	}
	if patch.Schedules != nil {
		add("schedules", pq.StringArray(patch.Schedules))
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	add("updated_at", time.Now().UTC())
	set = append(set, "version = version + 1")

	query := fmt.Sprintf(`UPDATE classrooms SET %s WHERE id = $%d AND version = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args)+1, len(args)+2, classroomColumns)
	args = append(args, id, expectedVersion)

	var room models.Classroom
	err := r.db.GetContext(ctx, &room, query, args...)
	if err == nil {
		return &room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update classroom: %w", err)
	}
	return nil, r.resolveMiss(ctx, id)
}

// Delete removes the classroom under the same compare-and-swap discipline.
func (r *ClassroomRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM classrooms WHERE id = $1 AND version = $2", id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete classroom: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete classroom rows: %w", err)
	}
	if affected == 0 {
		return r.resolveMiss(ctx, id)
	}
	return nil
}

// resolveMiss disambiguates a failed conditional write: a row present at a
// different version is a conflict, an absent row is not found.
func (r *ClassroomRepository) resolveMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM classrooms WHERE id = $1)", id); err != nil {
		return fmt.Errorf("probe classroom: %w", err)
	}
	if exists {
		return ErrVersionConflict
	}
	return sql.ErrNoRows
}

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

const timeEntryColumns = "id, version, user_id, classroom_id, occurred_on, time_in, time_out, status, archived, notes, created_at, updated_at"

// TimeEntryRepository handles persistence for the time entry log.
type TimeEntryRepository struct {
	db *sqlx.DB
}

// NewTimeEntryRepository constructs the repository.
func NewTimeEntryRepository(db *sqlx.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

// Append inserts a new time entry with version 1 and archived = false.
func (r *TimeEntryRepository) Append(ctx context.Context, entry *models.TimeEntry) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Version = 1
	entry.Archived = false
	if entry.Status == "" {
		entry.Status = models.TimeEntryPending
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	query := `INSERT INTO time_entries (id, version, user_id, classroom_id, occurred_on, time_in, time_out, status, archived, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.Version, entry.UserID, entry.ClassroomID, entry.OccurredOn, entry.TimeIn, entry.TimeOut, entry.Status, entry.Archived, entry.Notes, entry.CreatedAt, entry.UpdatedAt); err != nil {
		return fmt.Errorf("append time entry: %w", err)
	}
	return nil
}

// GetByID fetches a single time entry.
func (r *TimeEntryRepository) GetByID(ctx context.Context, id string) (*models.TimeEntry, error) {
	var entry models.TimeEntry
	query := fmt.Sprintf("SELECT %s FROM time_entries WHERE id = $1", timeEntryColumns)
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, fmt.Errorf("get time entry: %w", err)
	}
	return &entry, nil
}

// List returns entries matching the filter along with the total count.
func (r *TimeEntryRepository) List(ctx context.Context, filter models.TimeEntryFilter) ([]models.TimeEntry, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.ClassroomID != "" {
		where = append(where, fmt.Sprintf("classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Archived != nil {
		where = append(where, fmt.Sprintf("archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("occurred_on >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("occurred_on <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")
	_, size, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM time_entries WHERE %s ORDER BY time_in DESC LIMIT %d OFFSET %d", timeEntryColumns, whereClause, size, offset)
	var entries []models.TimeEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list time entries: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM time_entries WHERE %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count time entries: %w", err)
	}
	return entries, total, nil
}

// FindUnarchived returns all unarchived entries whose occurred_on date falls
// within the inclusive range. Aggregation keys off this query.
func (r *TimeEntryRepository) FindUnarchived(ctx context.Context, from, to time.Time) ([]models.TimeEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM time_entries WHERE archived = false AND occurred_on >= $1 AND occurred_on <= $2 ORDER BY time_in ASC", timeEntryColumns)
	var entries []models.TimeEntry
	if err := r.db.SelectContext(ctx, &entries, query, from, to); err != nil {
		return nil, fmt.Errorf("find unarchived time entries: %w", err)
	}
	return entries, nil
}

// MarkArchived flips the archived flag for the given ids in one bulk write.
// Already-archived ids are skipped by the WHERE guard, making re-marking a
// no-op rather than an error. Returns the number of newly archived rows.
func (r *TimeEntryRepository) MarkArchived(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, "UPDATE time_entries SET archived = true WHERE id = ANY($1) AND archived = false", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark time entries archived: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark archived rows: %w", err)
	}
	return affected, nil
}

// SetStatus updates the review status as a conditional write against the
// expected version.
func (r *TimeEntryRepository) SetStatus(ctx context.Context, id string, expectedVersion int64, status models.TimeEntryStatus) (*models.TimeEntry, error) {
	query := fmt.Sprintf(`UPDATE time_entries SET status = $1, updated_at = $2, version = version + 1
WHERE id = $3 AND version = $4 RETURNING %s`, timeEntryColumns)
	var entry models.TimeEntry
	err := r.db.GetContext(ctx, &entry, query, status, time.Now().UTC(), id, expectedVersion)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set time entry status: %w", err)
	}
	return nil, r.resolveMiss(ctx, id)
}

// SetTimeOut closes an open entry under the same versioned discipline.
func (r *TimeEntryRepository) SetTimeOut(ctx context.Context, id string, expectedVersion int64, timeOut time.Time) (*models.TimeEntry, error) {
	query := fmt.Sprintf(`UPDATE time_entries SET time_out = $1, updated_at = $2, version = version + 1
WHERE id = $3 AND version = $4 RETURNING %s`, timeEntryColumns)
	var entry models.TimeEntry
	err := r.db.GetContext(ctx, &entry, query, timeOut, time.Now().UTC(), id, expectedVersion)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set time entry time out: %w", err)
	}
	return nil, r.resolveMiss(ctx, id)
}

func (r *TimeEntryRepository) resolveMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM time_entries WHERE id = $1)", id); err != nil {
		return fmt.Errorf("probe time entry: %w", err)
	}
	if exists {
		return ErrVersionConflict
	}
	return sql.ErrNoRows
}

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

	"github.com/noah-isme/classtrack-api/internal/models"
)

func timeEntryRows(version int64, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "version", "user_id", "classroom_id", "occurred_on", "time_in", "time_out", "status", "archived", "notes", "created_at", "updated_at"}).
		AddRow("entry-1", version, "user-1", "room-1", now, now, nil, string(models.TimeEntryPending), false, nil, now, now)
}

func TestTimeEntryAppendDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	mock.ExpectExec("INSERT INTO time_entries").WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.TimeEntry{UserID: "user-1", ClassroomID: "room-1", OccurredOn: time.Now(), TimeIn: time.Now()}
	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Version)
	assert.Equal(t, models.TimeEntryPending, entry.Status)
	assert.False(t, entry.Archived)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeEntryFindUnarchived(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	from := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Millisecond)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version, user_id, classroom_id, occurred_on, time_in, time_out, status, archived, notes, created_at, updated_at FROM time_entries WHERE archived = false AND occurred_on >= $1 AND occurred_on <= $2 ORDER BY time_in ASC")).
		WithArgs(from, to).
		WillReturnRows(timeEntryRows(1, from))

	entries, err := repo.FindUnarchived(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeEntryMarkArchivedBulk(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE time_entries SET archived = true WHERE id = ANY($1) AND archived = false")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.MarkArchived(context.Background(), []string{"entry-1", "entry-2", "entry-3"})
	require.NoError(t, err)
	// One of the three was already archived; the guard skips it silently.
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeEntryMarkArchivedEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	affected, err := repo.MarkArchived(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeEntrySetStatusConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	mock.ExpectQuery("UPDATE time_entries SET status = \\$1, updated_at = \\$2, version = version \\+ 1").
		WithArgs(string(models.TimeEntryVerified), sqlmock.AnyArg(), "entry-1", int64(1)).
		WillReturnRows(timeEntryRows(2, time.Now()))

	entry, err := repo.SetStatus(context.Background(), "entry-1", 1, models.TimeEntryVerified)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeEntrySetStatusStaleVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeEntryRepository(db)

	mock.ExpectQuery("UPDATE time_entries SET status").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM time_entries WHERE id = $1)")).
		WithArgs("entry-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.SetStatus(context.Background(), "entry-1", 3, models.TimeEntryVerified)
	require.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

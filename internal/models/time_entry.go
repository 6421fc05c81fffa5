package models

import "time"

// TimeEntryStatus is the review lifecycle state of a time entry.
type TimeEntryStatus string

const (
	TimeEntryPending  TimeEntryStatus = "PENDING"
	TimeEntryVerified TimeEntryStatus = "VERIFIED"
	TimeEntryRejected TimeEntryStatus = "REJECTED"
)

// Valid reports whether the status is a supported value.
func (s TimeEntryStatus) Valid() bool {
	switch s {
	case TimeEntryPending, TimeEntryVerified, TimeEntryRejected:
		return true
	default:
		return false
	}
}

// TimeEntry is a single classroom usage record (a time-in event).
//
// OccurredOn is the calendar date of the entry normalized to the service
// timezone; aggregation keys off it, never off the raw timestamps. Two
// mutation paths exist and touch disjoint fields: reviewers change Status
// (and TimeOut) through the versioned discipline, and the archival pass
// flips Archived without version checks because it is the only writer of
// that field.
type TimeEntry struct {
	ID          string          `db:"id" json:"id"`
	Version     int64           `db:"version" json:"version"`
	UserID      string          `db:"user_id" json:"user_id"`
	ClassroomID string          `db:"classroom_id" json:"classroom_id"`
	OccurredOn  time.Time       `db:"occurred_on" json:"occurred_on"`
	TimeIn      time.Time       `db:"time_in" json:"time_in"`
	TimeOut     *time.Time      `db:"time_out" json:"time_out,omitempty"`
	Status      TimeEntryStatus `db:"status" json:"status"`
	Archived    bool            `db:"archived" json:"archived"`
	Notes       *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// TimeEntryFilter scopes listing queries.
type TimeEntryFilter struct {
	UserID      string
	ClassroomID string
	Status      *TimeEntryStatus
	Archived    *bool
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
}

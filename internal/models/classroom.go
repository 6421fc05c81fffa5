package models

import (
	"time"

	"github.com/lib/pq"
)

// Classroom represents a bookable room tracked by the system.
//
// Version implements optimistic concurrency control: it starts at 1 and is
// bumped by exactly 1 on every successful write. Callers must present the
// version they read; a mismatch means another editor won the race.
type Classroom struct {
	ID        string         `db:"id" json:"id"`
	Version   int64          `db:"version" json:"version"`
	Name      string         `db:"name" json:"name"`
	Location  string         `db:"location" json:"location"`
	Capacity  int            `db:"capacity" json:"capacity"`
	Schedules pq.StringArray `db:"schedules" json:"schedules"`
	Active    bool           `db:"active" json:"active"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// ClassroomPatch carries the caller-editable subset of classroom fields.
// System fields (id, version, timestamps) are never read from client input.
type ClassroomPatch struct {
	Name      *string  `json:"name,omitempty"`
	Location  *string  `json:"location,omitempty"`
	Capacity  *int     `json:"capacity,omitempty"`
	Schedules []string `json:"schedules,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

// ClassroomFilter scopes listing queries.
type ClassroomFilter struct {
	Location string
	Active   *bool
	Page     int
	PageSize int
}

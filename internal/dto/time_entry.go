package dto

import "time"

// CreateTimeEntryRequest records a time-in event.
type CreateTimeEntryRequest struct {
	UserID      string    `json:"user_id" validate:"required"`
	ClassroomID string    `json:"classroom_id" validate:"required"`
	TimeIn      time.Time `json:"time_in" validate:"required"`
	Notes       *string   `json:"notes,omitempty"`
}

// SetTimeEntryStatusRequest changes the review status of an entry under the
// versioned discipline.
type SetTimeEntryStatusRequest struct {
	ExpectedVersion int64  `json:"expected_version" validate:"required,gte=1"`
	Status          string `json:"status" validate:"required"`
}

// CheckoutTimeEntryRequest closes an open entry.
type CheckoutTimeEntryRequest struct {
	ExpectedVersion int64     `json:"expected_version" validate:"required,gte=1"`
	TimeOut         time.Time `json:"time_out" validate:"required"`
}

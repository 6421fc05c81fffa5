package dto

// CreateClassroomRequest is the payload for registering a classroom.
type CreateClassroomRequest struct {
	Name      string   `json:"name" validate:"required"`
	Location  string   `json:"location" validate:"required"`
	Capacity  int      `json:"capacity" validate:"gte=0"`
	Schedules []string `json:"schedules,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

// UpdateClassroomRequest carries a partial payload plus the version the
// caller read. Fields outside this struct (id, version, timestamps) are
// ignored by binding and therefore stripped before persistence.
type UpdateClassroomRequest struct {
	ExpectedVersion int64    `json:"expected_version" validate:"required,gte=1"`
	Name            *string  `json:"name,omitempty"`
	Location        *string  `json:"location,omitempty"`
	Capacity        *int     `json:"capacity,omitempty"`
	Schedules       []string `json:"schedules,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

// DeleteRequest carries the version precondition for a delete.
type DeleteRequest struct {
	ExpectedVersion int64 `json:"expected_version" validate:"required,gte=1"`
}

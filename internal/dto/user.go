package dto

// CreateUserRequest is the payload for registering a user.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// UpdateUserRequest carries a partial user payload plus the version
// precondition. Password and reset token changes go through dedicated flows,
// never through this payload.
type UpdateUserRequest struct {
	ExpectedVersion int64   `json:"expected_version" validate:"required,gte=1"`
	Email           *string `json:"email,omitempty"`
	FullName        *string `json:"full_name,omitempty"`
	Role            *string `json:"role,omitempty"`
	Active          *bool   `json:"active,omitempty"`
}

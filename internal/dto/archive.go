package dto

// RunArchivalRequest optionally overrides the target date of a manual pass.
// When Date is empty the pass targets yesterday in the service timezone.
type RunArchivalRequest struct {
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

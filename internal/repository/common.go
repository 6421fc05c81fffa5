package repository

import "errors"

// ErrVersionConflict is returned by conditional writes when the row exists
// but its stored version differs from the caller's expected version. The
// write leaves the row untouched in that case.
var ErrVersionConflict = errors.New("version conflict")

func clampPage(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	return page, size, (page - 1) * size
}

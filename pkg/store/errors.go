package store

import "errors"

var (
	// ErrNotFound covers both missing rows and rows invisible to the
	// caller's tenant; callers must not distinguish the two.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a uniqueness violation such as a duplicate
	// active webhook path.
	ErrConflict = errors.New("conflict")
)

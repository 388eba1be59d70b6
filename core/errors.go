package core

import "errors"

var (
	// ErrInvalidInput covers malformed record counts, dangling edge references
	// and degenerate bounds. It is a caller bug.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized is returned when a query runs before its load call.
	ErrNotInitialized = errors.New("not initialized")

	// ErrUnavailable means the compute backend is not loaded. Callers switch
	// to the host fallback instead of surfacing it.
	ErrUnavailable = errors.New("compute backend unavailable")

	// ErrBusy is returned when the scratch arena is already checked out.
	ErrBusy = errors.New("buffer checked out")
)

// IsCallerBug reports whether err belongs to the caller-bug half of the taxonomy
func IsCallerBug(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotInitialized) || errors.Is(err, ErrBusy)
}

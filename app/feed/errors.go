package feed

import "errors"

// ErrFeedNotFound is returned when an operation references a feed id that
// does not exist.
var ErrFeedNotFound = errors.New("feed not found")

// ValidationError rejects a feed create/update before any store call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(message string) error {
	return &ValidationError{Message: message}
}

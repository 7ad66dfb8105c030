package chatclient

import (
	"errors"
	"fmt"
)

// Sentinels wrapped by ValidationError and NetworkError.
var (
	ErrEmptyUsername = errors.New("username is empty")
	ErrEmptyText     = errors.New("message text is empty")
	ErrNotSubscribed = errors.New("subscription was not acknowledged")
)

// Result tells a caller which class of outcome an operation had.
type Result int

const (
	ResultSuccess Result = iota
	ResultValidationError
	ResultNetworkError
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultValidationError:
		return "validation error"
	case ResultNetworkError:
		return "network error"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ValidationError is returned when input is refused locally, before any network call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// NetworkError wraps a failed call to the relay or the pub/sub provider.
// Status is the HTTP status when the server answered, 0 otherwise.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Classify maps err to a Result. Errors that are neither validation nor
// network failures are reported as network errors since every remaining
// failure path goes through a remote call.
func Classify(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ResultValidationError
	}
	return ResultNetworkError
}

// IsNetworkError reports whether err came from a remote call.
func IsNetworkError(err error) bool {
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable indicates the chat service could not be reached
	// or produced no usable response. The request may or may not have been
	// processed server-side, so callers must not blindly retry sends.
	ErrServiceUnavailable = errors.New("chat service unavailable")

	// ErrRequestRejected indicates the chat service returned a non-success
	// status. Use errors.As with *RequestRejectedError for the status code.
	ErrRequestRejected = errors.New("chat service rejected the request")
)

// RequestRejectedError carries the non-2xx status returned by the service.
type RequestRejectedError struct {
	StatusCode int
	Body       string
}

func (e *RequestRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat service returned status %d: %s", e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrRequestRejected) match.
func (e *RequestRejectedError) Is(target error) bool {
	return target == ErrRequestRejected
}

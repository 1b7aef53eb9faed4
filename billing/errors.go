package billing

import (
	"errors"
	"fmt"
)

// ErrMainThread is the panic value raised when a blocking Gateway call is
// made from the host's main thread.
var ErrMainThread = errors.New("billing: blocking store call on main thread")

// StoreError is a non-OK store response.
type StoreError struct {
	Code    ResponseCode
	Message string
}

func (e *StoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("billing: store error %s", e.Code)
	}
	return fmt.Sprintf("billing: store error %s: %s", e.Code, e.Message)
}

// Code extracts the store response code from err, or OK when err carries
// none.
func Code(err error) (ResponseCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return OK, false
}

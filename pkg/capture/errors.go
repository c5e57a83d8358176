package capture

import (
	"errors"
	"fmt"
)

// Status classifies capture pipeline failures.
type Status int

const (
	StatusSuccess Status = iota
	StatusOutOfMemory
	StatusDescriptorsExhausted
	StatusResetTimeout
	StatusDisableTimeout
	StatusBufferTooSmall
	StatusMapFailed
	StatusInvalidState
	StatusInvalidArgument
)

var statusMessages = map[Status]string{
	StatusSuccess:              "success",
	StatusOutOfMemory:          "out of memory",
	StatusDescriptorsExhausted: "not enough dma descriptors",
	StatusResetTimeout:         "controller reset timed out",
	StatusDisableTimeout:       "controller disable timed out",
	StatusBufferTooSmall:       "buffer too small for frame",
	StatusMapFailed:            "mapping failed",
	StatusInvalidState:         "invalid stream state",
	StatusInvalidArgument:      "invalid argument",
}

// String returns the human-readable status message.
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Error is a capture pipeline failure with an optional context and
// cause.
type Error struct {
	Status  Status
	Context string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Context != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Context, e.Status, e.Cause)
	case e.Context != "":
		return fmt.Sprintf("%s: %s", e.Context, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Status, e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors carrying the same status.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Status == other.Status
	}
	return false
}

// NewError creates an Error with the given status.
func NewError(status Status, context string) *Error {
	return &Error{Status: status, Context: context}
}

// NewErrorWithCause creates an Error wrapping an underlying cause.
func NewErrorWithCause(status Status, context string, cause error) *Error {
	return &Error{Status: status, Context: context, Cause: cause}
}

// IsStatus reports whether err carries the given status.
func IsStatus(err error, status Status) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}

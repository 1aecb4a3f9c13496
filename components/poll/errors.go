package poll

import (
	"context"
	"errors"

	"github.com/open-control-systems/device-poller/components/status"
)

// ClientError marks an expected failure of the remote API communication.
//
// Remarks:
//   - Error() is the message of the underlying error as is.
type ClientError struct {
	Err error
}

// NewClientError wraps err into ClientError.
func NewClientError(err error) *ClientError {
	return &ClientError{Err: err}
}

func (e *ClientError) Error() string {
	return e.Err.Error()
}

// Unwrap allows to match both the underlying error and status.StatusClientError.
func (e *ClientError) Unwrap() []error {
	return []error{e.Err, status.StatusClientError}
}

// UpdateFailedError is returned when a refresh failed for an expected reason.
//
// Remarks:
//   - The cached snapshot is left untouched.
//   - errors.Is(err, status.StatusUpdateFailed) is true for all instances.
type UpdateFailedError struct {
	msg   string
	cause error
}

func (e *UpdateFailedError) Error() string {
	return e.msg
}

// Unwrap allows to match the cause and status.StatusUpdateFailed.
func (e *UpdateFailedError) Unwrap() []error {
	return []error{e.cause, status.StatusUpdateFailed}
}

// Classifier decides if a fetch error is an expected client communication failure.
type Classifier func(err error) bool

// IsClientError is the default Classifier.
func IsClientError(err error) bool {
	return errors.Is(err, status.StatusClientError)
}

func newUpdateFailed(cause error) *UpdateFailedError {
	return &UpdateFailedError{
		msg:   "Error communicating with API: " + cause.Error(),
		cause: cause,
	}
}

func newTimeoutFailed(name string) *UpdateFailedError {
	return &UpdateFailedError{
		msg:   "Timeout fetching " + name + " data",
		cause: errors.Join(status.StatusTimeout, context.DeadlineExceeded),
	}
}

package status

import "errors"

var (
	// StatusError indicates a failure of an operation.
	StatusError = errors.New("operation failed")

	// StatusInvalidState indicates that an operation can't be performed due to invalid state.
	StatusInvalidState = errors.New("invalid state")

	// StatusNoData indicates that the requested data doesn't exist.
	StatusNoData = errors.New("no data")

	// StatusTimeout indicates that an operation didn't complete in time.
	StatusTimeout = errors.New("timeout")

	// StatusClientError indicates an expected failure while talking to a remote API:
	// network errors, error responses, malformed payloads.
	StatusClientError = errors.New("client error")

	// StatusUpdateFailed indicates that a data refresh failed for an expected reason.
	StatusUpdateFailed = errors.New("update failed")
)

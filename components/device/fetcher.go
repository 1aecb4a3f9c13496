package device

import "context"

// Fetcher fetches raw device data.
type Fetcher interface {
	// Fetch the device data.
	Fetch(ctx context.Context) ([]byte, error)
}

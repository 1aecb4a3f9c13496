package htclient

import (
	"context"
	"fmt"
	"net/http"
)

// StatusCodeError is returned when the HTTP resource responded with unexpected code.
type StatusCodeError struct {
	URL  string
	Code int
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: url=%s code=%d", e.URL, e.Code)
}

// URLFetcher sends GET requests to the configured HTTP endpoint.
type URLFetcher struct {
	url    string
	client *HTTPClient
}

// NewURLFetcher is an initialization of URLFetcher.
//
// Parameters:
//   - client to perform an actual HTTP request.
//   - url - HTTP URL.
func NewURLFetcher(client *HTTPClient, url string) *URLFetcher {
	return &URLFetcher{
		url:    url,
		client: client,
	}
}

// Fetch fetches data from the HTTP resource.
//
// Remarks:
//   - ctx bounds the whole request including reading of the body.
//   - Non-200 responses are reported as *StatusCodeError.
func (f *URLFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, body, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusCodeError{URL: f.url, Code: resp.StatusCode}
	}

	return body, nil
}

// URL returns the fetched URL.
func (f *URLFetcher) URL() string {
	return f.url
}

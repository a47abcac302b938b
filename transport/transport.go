package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vinayprograms/pollsock/errors"
)

// Request methods used by the polling protocol.
const (
	MethodGet  = http.MethodGet
	MethodPost = http.MethodPost
)

// StatusLegacyNoContent is reported by some legacy HTTP stacks for 204.
const StatusLegacyNoContent = 1223

// Requester issues one request and returns the response body.
type Requester interface {
	// Request blocks until the response is read or the request fails.
	// Cancelling ctx aborts the request.
	Request(ctx context.Context, method, url, body string) (string, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, method, url, body string) (string, error)

// Request calls f.
func (f RequesterFunc) Request(ctx context.Context, method, url, body string) (string, error) {
	return f(ctx, method, url, body)
}

// StatusError reports a response with a non-success status.
type StatusError struct {
	Method string
	URL    string
	Status int
	Text   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d %s", e.Method, e.URL, e.Status, e.Text)
}

// Unwrap exposes the structured BAD_STATUS error so errors.Is works on codes.
func (e *StatusError) Unwrap() error {
	return errors.BadStatus(e.Status, e.Text, errors.WithRequest(e.Method, e.URL))
}

// IsSuccess reports whether status counts as a successful response.
func IsSuccess(status int) bool {
	return (status >= 200 && status < 300) || status == StatusLegacyNoContent
}

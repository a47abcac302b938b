// Package errors provides the structured error taxonomy used across pollsock.
//
// # Error Categories
//
// Errors are classified into five categories:
//
//   - Usage: the caller invoked an operation that the socket cannot honour
//     in its current state (send while connecting, invalid close code, bad URL).
//   - Framing: a packet or payload could not be decoded.
//   - Transport: a request failed, was aborted or returned a non-success status.
//   - Protocol: the peer sent something that is well framed but not allowed.
//   - Internal: unexpected failures, including recovered listener panics.
//
// Usage errors are returned synchronously from the call that caused them.
// Framing, transport and protocol errors are never returned to the caller of
// Send or Close; the socket reports them through its error and close
// notifications.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidState, "socket is still connecting")
//
//	if errors.Is(err, errors.ErrCodeInvalidState) {
//	    // wait for the open notification
//	}
//
// Transport errors carry the request that failed, and are the only category
// that may be retried:
//
//	if req, ok := errors.RequestOf(err); ok && errors.IsRetryable(err) {
//	    log.Printf("retrying %s", req)
//	}
package errors

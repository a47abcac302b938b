// Package transport provides the request primitive a polling socket runs on.
//
// # Overview
//
// A polling socket never holds a connection open. Every receive is a GET and
// every send is a POST against the session URL. The socket only needs one
// capability for that, the Requester:
//
//	type Requester interface {
//	    Request(ctx context.Context, method, url, body string) (string, error)
//	}
//
// Request blocks until the response body is available or the request fails.
// Cancelling ctx aborts the request; the socket uses that to abort its
// in-flight receive when it is closed.
//
// # Available Requesters
//
//   - HTTPRequester: net/http with cookie persistence, status classification
//     and an OpenTelemetry span per request
//   - RequesterFunc: adapter for plain functions (tests, custom stacks)
//
// # Status Handling
//
// Any 2xx status is success, as is 1223, the status some legacy HTTP stacks
// report in place of 204. Everything else is a *StatusError.
package transport

package errors

// ErrorCategory classifies errors by where they originate.
type ErrorCategory string

// Error categories.
const (
	// CategoryUsage marks errors caused by the caller (invalid state, bad arguments).
	CategoryUsage ErrorCategory = "usage"

	// CategoryFraming marks malformed packets or payloads.
	CategoryFraming ErrorCategory = "framing"

	// CategoryTransport marks failed, aborted or rejected requests.
	// Examples: connection refused, HTTP 500, request canceled.
	CategoryTransport ErrorCategory = "transport"

	// CategoryProtocol marks well-framed traffic that breaks the session protocol.
	CategoryProtocol ErrorCategory = "protocol"

	// CategoryInternal marks unexpected errors, bugs or recovered panics.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransport
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes.
const (
	// Usage errors
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"  // Operation not allowed in current ready state
	ErrCodeInvalidAccess ErrorCode = "INVALID_ACCESS" // Close code outside the allowed range
	ErrCodeSyntax        ErrorCode = "SYNTAX"         // Malformed URL or protocol list

	// Framing errors
	ErrCodeParse ErrorCode = "PARSE" // Packet or payload could not be decoded

	// Transport errors
	ErrCodeNetworkErr ErrorCode = "NETWORK_ERR" // Request could not be completed
	ErrCodeBadStatus  ErrorCode = "BAD_STATUS"  // Non-success response status
	ErrCodeAborted    ErrorCode = "ABORTED"     // Request aborted by the socket
	ErrCodeTimeout    ErrorCode = "TIMEOUT"     // Request deadline exceeded
	ErrCodeTooLarge   ErrorCode = "TOO_LARGE"   // Body over the configured limit

	// Protocol errors
	ErrCodeProtocol  ErrorCode = "PROTOCOL"  // Unexpected packet for the current state
	ErrCodeHandshake ErrorCode = "HANDSHAKE" // Open packet without a usable session

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeInvalidState, ErrCodeInvalidAccess, ErrCodeSyntax:
		return CategoryUsage
	case ErrCodeParse:
		return CategoryFraming
	case ErrCodeNetworkErr, ErrCodeBadStatus, ErrCodeAborted, ErrCodeTimeout, ErrCodeTooLarge:
		return CategoryTransport
	case ErrCodeProtocol, ErrCodeHandshake:
		return CategoryProtocol
	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
// Aborted requests and oversized bodies are transport errors but are never
// retried.
func (c ErrorCode) DefaultRetryable() bool {
	if c == ErrCodeAborted || c == ErrCodeTooLarge {
		return false
	}
	return c.DefaultCategory().IsRetryable()
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeInvalidState:  "invalid state",
	ErrCodeInvalidAccess: "invalid access",
	ErrCodeSyntax:        "syntax error",
	ErrCodeParse:         "parser error",
	ErrCodeNetworkErr:    "network error",
	ErrCodeBadStatus:     "unexpected response status",
	ErrCodeAborted:       "request aborted",
	ErrCodeTimeout:       "request timed out",
	ErrCodeTooLarge:      "body too large",
	ErrCodeProtocol:      "protocol violation",
	ErrCodeHandshake:     "invalid handshake",
	ErrCodeInternal:      "internal error",
	ErrCodePanic:         "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

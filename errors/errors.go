package errors

import (
	"fmt"
	"strings"
)

// Request identifies the HTTP exchange a transport error came from.
type Request struct {
	Method string
	URL    string
	Status int // 0 when no response arrived
}

func (r Request) String() string {
	if r.Status != 0 {
		return fmt.Sprintf("%s %s [%d]", r.Method, r.URL, r.Status)
	}
	return r.Method + " " + r.URL
}

// Error is a classified socket failure. The category and retry behaviour
// follow from the code; transport errors also carry the failed request.
type Error struct {
	code      ErrorCode
	message   string
	cause     error
	request   *Request
	retryable bool
}

// Error renders "<method> <url>: <message>: <cause>", omitting absent parts.
func (e *Error) Error() string {
	var b strings.Builder
	if e.request != nil {
		b.WriteString(e.request.Method)
		b.WriteByte(' ')
		b.WriteString(e.request.URL)
		b.WriteString(": ")
	}
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Code() ErrorCode { return e.code }

func (e *Error) Category() ErrorCategory { return e.code.DefaultCategory() }

func (e *Error) Retryable() bool { return e.retryable }

func (e *Error) Unwrap() error { return e.cause }

// Request returns the failed request recorded on e or its causes.
func (e *Error) Request() (Request, bool) {
	return RequestOf(e)
}

// Option adjusts an Error under construction.
type Option func(*Error)

// WithRequest records the request the error belongs to.
func WithRequest(method, url string) Option {
	return func(e *Error) {
		if e.request == nil {
			e.request = &Request{}
		}
		e.request.Method = method
		e.request.URL = url
	}
}

// WithStatus records the response status of the failed request.
func WithStatus(status int) Option {
	return func(e *Error) {
		if e.request == nil {
			e.request = &Request{}
		}
		e.request.Status = status
	}
}

// WithRetryable overrides the code's default retry behaviour.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = retryable
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates an Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		message:   message,
		retryable: code.DefaultRetryable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func InvalidState(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidState, message, opts...)
}

func InvalidAccess(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidAccess, message, opts...)
}

func Syntax(message string, opts ...Option) *Error {
	return New(ErrCodeSyntax, message, opts...)
}

func Parse(message string, opts ...Option) *Error {
	return New(ErrCodeParse, message, opts...)
}

func Protocol(message string, opts ...Option) *Error {
	return New(ErrCodeProtocol, message, opts...)
}

// BadStatus reports a response whose status is not a success.
func BadStatus(status int, text string, opts ...Option) *Error {
	opts = append([]Option{WithStatus(status)}, opts...)
	return New(ErrCodeBadStatus, fmt.Sprintf("unexpected status %d %s", status, text), opts...)
}

// TooLarge reports a body that exceeded limit bytes.
func TooLarge(limit int64, opts ...Option) *Error {
	return New(ErrCodeTooLarge, fmt.Sprintf("body exceeds %d bytes", limit), opts...)
}

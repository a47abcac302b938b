package errors

import (
	"context"
	"errors"
)

// Wrap attaches message to err and classifies it. A wrapped *Error keeps its
// code and retry behaviour; its request stays reachable through Request. context.Canceled becomes ABORTED,
// context.DeadlineExceeded becomes TIMEOUT and anything else NETWORK_ERR.
// Wrap(nil, ...) is nil.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	code := ErrCodeNetworkErr
	var inner *Error
	switch {
	case errors.As(err, &inner):
		code = inner.code
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = ErrCodeAborted
	}

	e := New(code, message, WithCause(err))
	if inner != nil {
		e.retryable = inner.retryable
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WrapWithCode wraps err under an explicit code. WrapWithCode(nil, ...) is nil.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append([]Option{WithCause(err)}, opts...)...)
}

func find(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Is reports whether the first *Error in err's chain has code.
func Is(err error, code ErrorCode) bool {
	e, ok := find(err)
	return ok && e.code == code
}

func IsCategory(err error, category ErrorCategory) bool {
	e, ok := find(err)
	return ok && e.Category() == category
}

func IsRetryable(err error) bool {
	e, ok := find(err)
	return ok && e.retryable
}

// IsUsage reports whether err was caused by the caller.
func IsUsage(err error) bool {
	return IsCategory(err, CategoryUsage)
}

// IsAborted reports whether err means the request was aborted locally,
// either as an ABORTED error or a bare context.Canceled.
func IsAborted(err error) bool {
	return Is(err, ErrCodeAborted) || errors.Is(err, context.Canceled)
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) ErrorCode {
	if e, ok := find(err); ok {
		return e.code
	}
	return ""
}

// RequestOf returns the request recorded anywhere in err's chain.
func RequestOf(err error) (Request, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.request != nil {
			return *e.request, true
		}
		err = errors.Unwrap(err)
	}
	return Request{}, false
}

// RecoverPanic converts a recovered panic value into a PANIC error.
func RecoverPanic(recovered interface{}) *Error {
	switch v := recovered.(type) {
	case nil:
		return nil
	case error:
		return New(ErrCodePanic, v.Error())
	case string:
		return New(ErrCodePanic, v)
	default:
		return Newf(ErrCodePanic, "%v", v)
	}
}

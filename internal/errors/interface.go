// Package errors carries the simulator's coded errors. Codes are stable
// strings, so they can be logged, recorded in run history and matched with
// HasCode.
package errors

type ErrorCode string

// Error is a coded error with an optional message, payload and cause.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory creates coded errors. Packages call New() once per function and
// build every error through it.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

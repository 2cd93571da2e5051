package dmxp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the small integer error code preserved across the FFI boundary
// described in spec §6. Values are stable: success is 0, timeout is -7;
// the remaining codes are assigned in the order spec §7 lists them.
type Code int

const (
	CodeSuccess            Code = 0
	CodeLayoutMismatch     Code = -1
	CodeDirectoryFull      Code = -2
	CodeCapacityInvalid    Code = -3
	CodeChannelNotFound    Code = -4
	CodeFull               Code = -5
	CodeEmpty              Code = -6
	CodeTimeout            Code = -7
	CodePayloadTooLarge    Code = -8
	CodeCorruption         Code = -9
	CodeIOError            Code = -10
	CodeInsufficientRegion Code = -11
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeLayoutMismatch:
		return "layout_mismatch"
	case CodeDirectoryFull:
		return "directory_full"
	case CodeCapacityInvalid:
		return "capacity_invalid"
	case CodeChannelNotFound:
		return "channel_not_found"
	case CodeFull:
		return "full"
	case CodeEmpty:
		return "empty"
	case CodeTimeout:
		return "timeout"
	case CodePayloadTooLarge:
		return "payload_too_large"
	case CodeCorruption:
		return "corruption"
	case CodeIOError:
		return "io_error"
	case CodeInsufficientRegion:
		return "insufficient_region"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is the error type returned by every fallible core operation. It
// carries the FFI-stable Code alongside the operation name and an
// optional wrapped cause, so callers can branch on Code while still
// getting a readable message and a stack trace via errors.Unwrap.
type Error struct {
	Code Code
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("dmxp: %s: %s: %v", e.Op, e.Code, e.err)
	}
	return fmt.Sprintf("dmxp: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.err }

func newError(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, err: cause}
}

func wrapError(code Code, op string, cause error) *Error {
	if cause == nil {
		return newError(code, op, nil)
	}
	return newError(code, op, errors.Wrap(cause, op))
}

// Sentinels for errors.Is comparisons. Every *Error produced by this
// package has Code set to the matching sentinel's code, so
// errors.Is(err, ErrFull) works regardless of the wrapped cause or op.
var (
	ErrLayoutMismatch     = &Error{Code: CodeLayoutMismatch, Op: "sentinel"}
	ErrDirectoryFull      = &Error{Code: CodeDirectoryFull, Op: "sentinel"}
	ErrCapacityInvalid    = &Error{Code: CodeCapacityInvalid, Op: "sentinel"}
	ErrChannelNotFound    = &Error{Code: CodeChannelNotFound, Op: "sentinel"}
	ErrFull               = &Error{Code: CodeFull, Op: "sentinel"}
	ErrEmpty              = &Error{Code: CodeEmpty, Op: "sentinel"}
	ErrTimeout            = &Error{Code: CodeTimeout, Op: "sentinel"}
	ErrPayloadTooLarge    = &Error{Code: CodePayloadTooLarge, Op: "sentinel"}
	ErrCorruption         = &Error{Code: CodeCorruption, Op: "sentinel"}
	ErrIOError            = &Error{Code: CodeIOError, Op: "sentinel"}
	ErrInsufficientRegion = &Error{Code: CodeInsufficientRegion, Op: "sentinel"}
)

// Is lets errors.Is match any *Error sharing the same Code, independent
// of Op or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

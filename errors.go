package aio

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/ehrlich-b/go-aio/internal/reactor"
)

// Error represents a structured aio error with operation context and errno
// mapping
type Error struct {
	Op    string        // Operation that failed (e.g., "accept", "connect")
	FD    int           // File descriptor (-1 if not applicable)
	Code  ErrorCode     // High-level error category
	Errno syscall.Errno // Kernel errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Op != "" && e.FD >= 0:
		return fmt.Sprintf("aio: %s (op=%s fd=%d)", msg, e.Op, e.FD)
	case e.Op != "":
		return fmt.Sprintf("aio: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("aio: %s", msg)
	}
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support: two aio errors match when their codes
// match.
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeCancelled         ErrorCode = "operation cancelled"
	ErrCodeEndOfFile         ErrorCode = "end of file"
	ErrCodeWouldBlock        ErrorCode = "operation would block"
	ErrCodeInterrupted       ErrorCode = "interrupted system call"
	ErrCodeBrokenPipe        ErrorCode = "broken pipe"
	ErrCodeConnectionRefused ErrorCode = "connection refused"
	ErrCodeConnectionReset   ErrorCode = "connection reset"
	ErrCodeAddressInUse      ErrorCode = "address in use"
	ErrCodeNameTooLong       ErrorCode = "name too long"
	ErrCodeTimedOut          ErrorCode = "timed out"
	ErrCodeClosed            ErrorCode = "descriptor closed"
	ErrCodeInvalidArgument   ErrorCode = "invalid argument"
	ErrCodeSystem            ErrorCode = "system error"
)

// Sentinel errors for the codes callers match on most. errors.Is against
// any *Error with the same code succeeds.
var (
	ErrCancelled   = &Error{FD: -1, Code: ErrCodeCancelled}
	ErrEndOfFile   = &Error{FD: -1, Code: ErrCodeEndOfFile}
	ErrNameTooLong = &Error{FD: -1, Code: ErrCodeNameTooLong}
	ErrClosed      = &Error{FD: -1, Code: ErrCodeClosed}
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, FD: -1, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a new structured error with errno
func NewErrorWithErrno(op string, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		FD:    -1,
		Code:  mapErrnoToCode(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// WrapError wraps an existing error with aio operation context. Reactor
// sentinels and raw errnos are normalised into the taxonomy; nil stays nil.
func WrapError(op string, fd int, inner error) error {
	if inner == nil {
		return nil
	}

	if ae, ok := inner.(*Error); ok {
		// Already structured; refresh operation context only.
		return &Error{
			Op:    op,
			FD:    fd,
			Code:  ae.Code,
			Errno: ae.Errno,
			Msg:   ae.Msg,
			Inner: ae.Inner,
		}
	}

	if errors.Is(inner, reactor.ErrClosed) {
		return &Error{Op: op, FD: fd, Code: ErrCodeClosed, Msg: string(ErrCodeClosed), Inner: inner}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			FD:    fd,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{Op: op, FD: fd, Code: ErrCodeSystem, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps syscall errno to aio error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EAGAIN:
		return ErrCodeWouldBlock
	case syscall.EINTR:
		return ErrCodeInterrupted
	case syscall.ECANCELED:
		return ErrCodeCancelled
	case syscall.EPIPE:
		return ErrCodeBrokenPipe
	case syscall.ECONNREFUSED:
		return ErrCodeConnectionRefused
	case syscall.ECONNRESET:
		return ErrCodeConnectionReset
	case syscall.EADDRINUSE:
		return ErrCodeAddressInUse
	case syscall.ENAMETOOLONG:
		return ErrCodeNameTooLong
	case syscall.ETIMEDOUT:
		return ErrCodeTimedOut
	case syscall.EBADF:
		return ErrCodeClosed
	case syscall.EINVAL:
		return ErrCodeInvalidArgument
	default:
		return ErrCodeSystem
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var aioErr *Error
	if errors.As(err, &aioErr) {
		return aioErr.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var aioErr *Error
	if errors.As(err, &aioErr) {
		return aioErr.Errno == errno
	}
	return false
}

// IsCancelled reports whether err is a cancellation completion.
func IsCancelled(err error) bool {
	return IsCode(err, ErrCodeCancelled)
}

// IsEndOfFile reports whether err is the zero-byte stream read sentinel.
func IsEndOfFile(err error) bool {
	return IsCode(err, ErrCodeEndOfFile)
}

// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
	"google.golang.org/grpc/codes"
)

// Error carries a failure kind alongside a human readable message.
type Error struct {
	Code    codes.Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code codes.Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) error {
	return newError(codes.Unauthenticated, format, args...)
}

func PermissionDenied(format string, args ...any) error {
	return newError(codes.PermissionDenied, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return newError(codes.InvalidArgument, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(codes.NotFound, format, args...)
}

func FailedPrecondition(format string, args ...any) error {
	return newError(codes.FailedPrecondition, format, args...)
}

func AlreadyExists(format string, args ...any) error {
	return newError(codes.AlreadyExists, format, args...)
}

// Internal wraps an unexpected storage or gateway failure.
func Internal(err error, format string, args ...any) error {
	return &Error{Code: codes.Internal, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewCampaignNotFound is returned by the ledger when a campaign id is unknown.
func NewCampaignNotFound(id string) error {
	return NotFound("campaign %s not found", id)
}

// NewPayoutNotFound is returned by the ledger when a payout id is unknown.
func NewPayoutNotFound(id string) error {
	return NotFound("payout %s not found", id)
}

// ErrStaleTransition reports a compare-and-set status update that matched no row
// because the payout moved on concurrently.
var ErrStaleTransition = &Error{Code: codes.FailedPrecondition, Message: "payout status changed concurrently"}

// CodeOf returns the kind of err, Internal for anything unclassified.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return codes.Internal
}

// Is reports whether err carries the given kind.
func Is(err error, code codes.Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the message safe to show to API callers. Wrapped causes
// are left out.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind onto the status code used by the HTTP API.
func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err references a row that does not exist.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

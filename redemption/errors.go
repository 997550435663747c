package redemption

import "fmt"

// ErrorKind is the closed set of typed domain error kinds from spec §7.
// Handlers map each kind to a stable HTTP status; the service never
// returns a bare error for anything a caller needs to branch on.
type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "UNAUTHENTICATED"
	KindForbidden        ErrorKind = "FORBIDDEN"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindInvalidArgument  ErrorKind = "INVALID_ARGUMENT"
	KindDailyLimit       ErrorKind = "DAILY_LIMIT"
	KindRateLimited      ErrorKind = "RATE_LIMITED"
	KindIneligibleOffer  ErrorKind = "INELIGIBLE_OFFER"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindInvalidOrExpired ErrorKind = "INVALID_OR_EXPIRED"
	KindDeviceMismatch   ErrorKind = "DEVICE_MISMATCH"
	KindVoidWindowExpired ErrorKind = "VOID_WINDOW_EXPIRED"
	KindTransient        ErrorKind = "TRANSIENT"
	KindInternal         ErrorKind = "INTERNAL"
)

// Error is the typed domain error every service method returns instead
// of a bare error, so it bubbles from service to handler unchanged
// (spec §7's propagation policy).
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, if any; never shown to the merchant terminal
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a domain error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a domain error carrying an underlying cause, used
// for the TRANSIENT/INTERNAL kinds where the original error is logged
// but never surfaced to the caller verbatim.
func Wrap(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	de, ok := err.(*Error)
	return de, ok
}

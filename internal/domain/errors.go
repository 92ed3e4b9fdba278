package domain

import "fmt"

// Kind is a stable, machine-readable error classification. The HTTP layer
// maps Kind to a status code per spec §7; nothing below this layer cares
// about status codes.
type Kind string

const (
	KindValidation           Kind = "VALIDATION"
	KindMarketNotTradable    Kind = "MARKET_NOT_TRADABLE"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindSerializationConflict Kind = "SERIALIZATION_CONFLICT"
	KindAuditUnavailable     Kind = "AUDIT_UNAVAILABLE"
	KindSigningFailure       Kind = "SIGNING_FAILURE"
	KindInternal             Kind = "INTERNAL"
)

// MarketNotTradableReason is the sub-kind spec §4.2.2 requires.
type MarketNotTradableReason string

const (
	ReasonNotFound  MarketNotTradableReason = "NOT_FOUND"
	ReasonResolved  MarketNotTradableReason = "RESOLVED"
	ReasonCancelled MarketNotTradableReason = "CANCELLED"
	ReasonEnded     MarketNotTradableReason = "ENDED"
)

// Error is the uniform error type carried across every core package.
// Field and Code let a caller distinguish "which input" and "why"
// without string-matching Message.
type Error struct {
	Kind    Kind
	Field   string
	Code    string
	Reason  MarketNotTradableReason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, field, code, msg string) *Error {
	return &Error{Kind: kind, Field: field, Code: code, Message: msg}
}

// Validation builds a Validation-kind error for a specific field.
func Validation(field, code, msg string) *Error {
	return newErr(KindValidation, field, code, msg)
}

// NotTradable builds a MarketNotTradable error with the given sub-kind.
func NotTradable(reason MarketNotTradableReason, msg string) *Error {
	e := newErr(KindMarketNotTradable, "marketId", string(reason), msg)
	e.Reason = reason
	return e
}

// RateLimited builds a RateLimited error for admission-lock contention.
func RateLimited(msg string) *Error {
	return newErr(KindRateLimited, "", "ADMISSION_LOCK_BUSY", msg)
}

// SerializationConflict builds an error for an exhausted transaction retry.
func SerializationConflict(err error) *Error {
	e := newErr(KindSerializationConflict, "", "SERIALIZATION_CONFLICT", "transaction retries exhausted")
	e.Err = err
	return e
}

// AuditUnavailable builds an error for an audit-store failure.
func AuditUnavailable(err error) *Error {
	e := newErr(KindAuditUnavailable, "", "AUDIT_UNAVAILABLE", "audit log append failed")
	e.Err = err
	return e
}

// SigningFailure builds an error for a key/signing failure. The caller's
// transaction has already committed when this fires (spec §7).
func SigningFailure(err error) *Error {
	e := newErr(KindSigningFailure, "", "SIGNING_FAILURE", "receipt signing failed")
	e.Err = err
	return e
}

// Internal builds an error for an invariant violation or unexpected failure.
func Internal(msg string, err error) *Error {
	e := newErr(KindInternal, "", "INTERNAL", msg)
	e.Err = err
	return e
}

// InvariantViolation panics with an *Error of kind Internal. The matching
// engine is total per spec §4.3: this only fires if book invariants were
// already broken before the call.
func InvariantViolation(msg string) {
	panic(Internal(msg, nil))
}

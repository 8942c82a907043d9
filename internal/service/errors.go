// Package service implements the application core: identity resolution
// with its cache-consistency discipline, the transaction ledger, and the
// replay-protected signed-request guard. Services hold no cross-request
// state; all exclusivity is delegated to the database's unique indexes
// and atomic operations and to the cache's set-if-absent primitive.
package service

import "errors"

// ErrUnauthorized is returned when a credential (api key, device key or
// session token) does not resolve to a user. Handlers translate this
// into an HTTP 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUserInactive is returned by EnsureActive for deactivated accounts.
var ErrUserInactive = errors.New("user is inactive")

// ErrSubscriptionExpired is returned by EnsureActive when the user's
// subscription lapsed before the resolution instant.
var ErrSubscriptionExpired = errors.New("subscription expired")

// Replay guard rejection reasons. All of them map to HTTP 401; they are
// distinct values so tests and logs can tell why a request was refused.
var (
	ErrMissingSignatureHeaders = errors.New("missing signature headers")
	ErrInvalidTimestamp        = errors.New("invalid timestamp")
	ErrTimestampOutOfRange     = errors.New("timestamp out of range")
	ErrNonceReused             = errors.New("nonce already used")
	ErrInvalidSignature        = errors.New("invalid signature")
)

// ValidationError reports malformed input rejected before any state is
// touched. Handlers translate it into an HTTP 400 with the message.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func validationErr(msg string) error { return &ValidationError{msg: msg} }

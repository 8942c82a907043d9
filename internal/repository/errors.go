// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and services to distinguish between different failure
// scenarios without inspecting driver-specific error strings. For
// example, ErrDuplicateTransaction signals that the unique
// (telegram_id, trx_id) constraint fired, which the ingest path
// deliberately reinterprets as a successful duplicate submission.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no row matches the lookup. Handlers
// translate this into HTTP 404 (or 401 for credential lookups).
var ErrNotFound = errors.New("not found")

// ErrUserExists is returned when creating a user whose telegram id,
// api key or device key collides with an existing row. Handlers
// translate this into an HTTP 409 response.
var ErrUserExists = errors.New("user already exists")

// ErrDuplicateTransaction is returned when inserting a transaction
// that violates the unique (telegram_id, trx_id) index. This is the
// storage-layer dedup signal: under concurrent duplicate submissions
// exactly one insert succeeds and every other one gets this error,
// with no partial write.
var ErrDuplicateTransaction = errors.New("duplicate transaction")

// isDuplicateKey reports whether err is a MySQL duplicate entry error
// (code 1062).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

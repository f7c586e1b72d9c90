// Package syncerr defines the error taxonomy for the sync engine.
// Every failure that crosses a component boundary is classified into
// one of these types so callers can branch with errors.As/Is instead
// of string matching.
package syncerr

import (
	"errors"
	"fmt"
)

// NetworkError wraps any failure to reach the server, including
// timeouts. The lifecycle controller recovers from these by falling
// back to the offline path; they are never surfaced to the caller of
// a mutating operation.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err (or any error in its chain) is a
// NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// NotFoundError indicates the record or server resource does not exist.
// On delete replay this is treated as success (the record is already
// gone server-side).
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("record %q not found", e.ID) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError indicates a malformed mutation payload. It is
// surfaced synchronously with no offline fallback: persisting invalid
// data locally would only delay the inevitable server rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a persistence-layer failure. Fatal to the
// operation in progress but must never corrupt the on-disk store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// AuthenticationRequiredError indicates a mutation was attempted with
// no resolvable user identity. Offline records need a clear eventual
// owner, so this blocks local creation outright.
type AuthenticationRequiredError struct{}

func (e *AuthenticationRequiredError) Error() string {
	return "authentication required: no user scope resolved"
}

// IsAuthenticationRequired reports whether err is an
// AuthenticationRequiredError.
func IsAuthenticationRequired(err error) bool {
	var ae *AuthenticationRequiredError
	return errors.As(err, &ae)
}

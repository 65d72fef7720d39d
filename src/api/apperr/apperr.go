// Package apperr defines the failure taxonomy shared by the messaging core.
// Components return these wrapped with %w; only the transport edges map them
// to HTTP status codes or socket error events.
package apperr

import "errors"

var (
	// ErrAccessDenied means the caller lacks membership or authorization.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound covers both genuinely absent entities and access that is
	// deliberately masked as absence.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest means required fields are missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrConflict means the entity is already in a terminal or duplicate state.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated means the bearer token is missing, bad, or expired.
	ErrUnauthenticated = errors.New("unauthenticated")
)

func IsAccessDenied(err error) bool    { return errors.Is(err, ErrAccessDenied) }
func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsInvalidRequest(err error) bool  { return errors.Is(err, ErrInvalidRequest) }
func IsConflict(err error) bool        { return errors.Is(err, ErrConflict) }
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }

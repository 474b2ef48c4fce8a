package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrActorRequired occurs when a mutating request carries no actor.
	ErrActorRequired = errors.New("actor id required")
	// ErrIdempotencyConflict indicates the key was already claimed.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)

// UserSafeMessage hides internal details from API consumers.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrActorRequired):
		return "missing " + ActorHeader + " header"
	case errors.Is(err, ErrIdempotencyConflict):
		return "request already processed"
	default:
		return "internal error"
	}
}

package store

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by store operations. The engine maps these onto its
// public error taxonomy; callers inside the store layer branch on them with
// errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPending indicates a pending action already exists for the
	// same (subscriber, trigger) pair. Raised by the partial unique index
	// guarding the pending-action insert.
	ErrAlreadyPending = errors.New("action already pending for subscriber and trigger")

	// ErrInvalidTransition indicates a guarded status update matched zero
	// rows because the action is not in the expected state.
	ErrInvalidTransition = errors.New("invalid action status transition")

	// ErrInvalidEpisodeState indicates an episode was already resolved or
	// does not exist.
	ErrInvalidEpisodeState = errors.New("invalid episode state")
)

// LimitExceededError reports which policy limit blocked a pending-action
// insert. The limit name is stable and machine-readable (e.g. "daily_actions").
type LimitExceededError struct {
	Limit string
	Max   int
	Count int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded: %s (%d/%d)", e.Limit, e.Count, e.Max)
}

// IsLimitExceeded reports whether err is a LimitExceededError and returns it.
func IsLimitExceeded(err error) (*LimitExceededError, bool) {
	var le *LimitExceededError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

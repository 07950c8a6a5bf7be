// Package lifecycle owns the approval state machine of agent actions:
// approve/reject/modify on pending actions, execution of approved ones, and
// the expiration sweep. All status changes flow through the guarded store
// update, so a stale caller loses the race instead of corrupting state.
package lifecycle

import (
	"github.com/subpilot/subpilot/store"
)

// transitions is the closed set of allowed status changes. Anything not
// listed here is rejected before touching the store.
var transitions = map[store.ActionStatus][]store.ActionStatus{
	store.ActionStatusPendingApproval: {
		store.ActionStatusApproved,
		store.ActionStatusRejected,
		store.ActionStatusExpired,
	},
	store.ActionStatusApproved: {
		store.ActionStatusExecuted,
		store.ActionStatusFailed,
	},
	// A failed delivery may be retried to completion.
	store.ActionStatusFailed: {
		store.ActionStatusExecuted,
	},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to store.ActionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func IsTerminal(status store.ActionStatus) bool {
	return len(transitions[status]) == 0
}

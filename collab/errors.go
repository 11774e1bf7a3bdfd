package collab

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied is returned when an identity tries to join or edit a
	// note it is not the author of, not a collaborator on, and which is not
	// public. Checked fresh on every edit, never cached from join time.
	ErrAccessDenied = errors.New("access denied")

	// ErrDuplicateConnection guards the registry against double registration.
	// The gateway's flow should make this impossible.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrNotConnected is returned by registry lookups for unknown connections.
	ErrNotConnected = errors.New("connection not registered")
)

// PersistenceError wraps a store failure during an edit. The edit is not
// considered applied and is never relayed to other participants.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting note: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

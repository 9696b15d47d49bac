package chat

import "errors"

var (
	// ErrCallNotFound indicates an unknown pending-call id.
	ErrCallNotFound = errors.New("tool call not found")

	// ErrAlreadyResolved rejects a second resolution for the same call id.
	ErrAlreadyResolved = errors.New("tool call already resolved")

	// ErrTurnActive rejects a new turn while one is still running for
	// the session; tool calls across turns are strictly sequential.
	ErrTurnActive = errors.New("turn already active for session")

	// ErrSessionScanMismatch rejects reuse of a session against a
	// different scan; a session is bound to one scan for its lifetime.
	ErrSessionScanMismatch = errors.New("session bound to a different scan")
)

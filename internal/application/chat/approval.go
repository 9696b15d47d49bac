package chat

import (
	"encoding/json"
	"sync"
)

// CallState is the lifecycle of one pending tool call:
// awaiting → approved|denied → executed (approved calls only).
type CallState string

const (
	CallAwaiting CallState = "awaiting"
	CallApproved CallState = "approved"
	CallDenied   CallState = "denied"
	CallExecuted CallState = "executed"
)

// PendingCall is one proposed mutation waiting for a human decision.
// Conversation-scoped and in-memory only.
type PendingCall struct {
	ID        string
	SessionID string
	Tool      string
	Args      json.RawMessage

	mu       sync.Mutex
	state    CallState
	decision chan bool
}

func newPendingCall(sessionID, id, tool string, args json.RawMessage) *PendingCall {
	return &PendingCall{
		ID:        id,
		SessionID: sessionID,
		Tool:      tool,
		Args:      args,
		state:     CallAwaiting,
		// Buffered so Resolve never blocks on the turn goroutine.
		decision: make(chan bool, 1),
	}
}

// resolve accepts exactly one decision per call. A second resolution is
// a protocol error and leaves the first outcome untouched.
func (pc *PendingCall) resolve(approved bool) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.state != CallAwaiting {
		return ErrAlreadyResolved
	}
	if approved {
		pc.state = CallApproved
	} else {
		pc.state = CallDenied
	}
	pc.decision <- approved
	return nil
}

func (pc *PendingCall) setExecuted() {
	pc.mu.Lock()
	pc.state = CallExecuted
	pc.mu.Unlock()
}

// State returns the current lifecycle state.
func (pc *PendingCall) State() CallState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

package chat

import "encoding/json"

// EventType enumerates the turn lifecycle events streamed to the client.
type EventType string

const (
	// EventSession announces the session id for this turn.
	EventSession EventType = "session"
	// EventText carries assistant prose.
	EventText EventType = "text"
	// EventApprovalRequired presents a pending tool call for approve/deny.
	EventApprovalRequired EventType = "approval_required"
	// EventToolResult carries the outcome of an approved, executed call.
	EventToolResult EventType = "tool_result"
	// EventDenied marks a call the user refused; its body never ran.
	EventDenied EventType = "denied"
	// EventFeaturesInvalidated tells the client its feature list is stale.
	EventFeaturesInvalidated EventType = "features_invalidated"
	// EventError reports a turn-level failure.
	EventError EventType = "error"
	// EventDone closes the turn.
	EventDone EventType = "done"
)

// Diff is the human-readable before/after payload rendered next to the
// approve/deny prompt: empty Old for adds, empty New for deletes.
type Diff struct {
	Title string `json:"title,omitempty"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Event is one streamed turn event.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Diff      *Diff           `json:"diff,omitempty"`
	Text      string          `json:"text,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Emitter receives turn events in order. Called from the turn goroutine.
type Emitter func(Event)

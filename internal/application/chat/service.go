// Package chat implements the conversational mutation agent: a
// multi-turn, tool-using loop bound to one scan, where every mutating
// tool call suspends the turn until a human approves or denies it.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/gherkin-agent/internal/application"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/ai"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/ai/prompt"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/prompts"
)

// maxTurnSteps bounds the model-invocation loop of a single turn.
const maxTurnSteps = 10

// deniedMarker is injected in place of a tool result when the user
// refuses a call. The tool body never ran; the model is expected to
// acknowledge and optionally propose an alternative.
const deniedMarker = "The user denied execution of this tool call. The change was NOT applied."

// Prompt-size caps for the chat system prompt, mirroring the synthesizer.
const (
	maxElementsJSON = 8000
	maxContentChars = 4000
)

// PromptSource resolves named prompt templates.
type PromptSource interface {
	Get(ctx context.Context, name string) (prompts.Prompt, error)
}

// Session is one conversation, bound to exactly one scan for its lifetime.
type Session struct {
	ID     string
	ScanID string
	Owner  string

	mu      sync.Mutex
	active  bool
	history []ai.Message
}

// Service implements use-cases untuk chat turns and tool-call approval.
type Service struct {
	Model    ai.ChatModel
	Scans    domain.Repository
	Features features.Repository
	Prompts  PromptSource
	Clock    application.Clock
	Log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	calls    map[string]*PendingCall
}

func NewService(model ai.ChatModel, scans domain.Repository, feats features.Repository, promptSrc PromptSource, clock application.Clock, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Model:    model,
		Scans:    scans,
		Features: feats,
		Prompts:  promptSrc,
		Clock:    clock,
		Log:      log,
		sessions: make(map[string]*Session),
		calls:    make(map[string]*PendingCall),
	}
}

// session returns the existing session or creates one bound to the scan.
// A seed conversation (client-held history) only applies to new sessions.
func (s *Service) session(sessionID, scanID, owner string, seed []ai.Message) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if sess, ok := s.sessions[sessionID]; ok {
			if sess.ScanID != scanID || sess.Owner != owner {
				return nil, ErrSessionScanMismatch
			}
			return sess, nil
		}
	}
	sess := &Session{
		ID:      uuid.New().String(),
		ScanID:  scanID,
		Owner:   owner,
		history: append([]ai.Message(nil), seed...),
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Turn runs one full agent turn: invoke the model, suspend on every
// proposed tool call until it is resolved, feed outcomes back, and loop
// until the model answers with plain text. Events stream through emit
// in order. The turn blocks at human speed; only ctx cancellation ends
// an unresolved wait.
func (s *Service) Turn(ctx context.Context, owner, scanID, sessionID string, seed []ai.Message, userMsg string, emit Emitter) error {
	// Bind to the scan and enforce ownership before anything else.
	scan, err := s.Scans.Get(ctx, owner, domain.ScanID(scanID))
	if err != nil {
		return err
	}

	sess, err := s.session(sessionID, scanID, owner, seed)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.active {
		sess.mu.Unlock()
		return ErrTurnActive
	}
	sess.active = true
	sess.mu.Unlock()
	defer func() {
		sess.mu.Lock()
		sess.active = false
		sess.mu.Unlock()
	}()

	emit(Event{Type: EventSession, SessionID: sess.ID})

	system, err := s.systemPrompt(ctx, scan)
	if err != nil {
		emit(Event{Type: EventError, Text: err.Error(), IsError: true})
		return err
	}

	sess.history = append(sess.history, ai.Message{Role: ai.RoleUser, Content: userMsg})
	log := s.Log.With("session_id", sess.ID, "scan_id", scanID)

	for step := 0; step < maxTurnSteps; step++ {
		msg, err := s.Model.Complete(ctx, system, sess.history, toolDefs())
		if err != nil {
			emit(Event{Type: EventError, Text: err.Error(), IsError: true})
			return err
		}
		sess.history = append(sess.history, msg)

		if msg.Content != "" {
			emit(Event{Type: EventText, Text: msg.Content})
		}
		if len(msg.ToolCalls) == 0 {
			emit(Event{Type: EventDone, SessionID: sess.ID})
			return nil
		}

		// Register every proposed call of this assistant turn before
		// waiting, so the client sees them all and can resolve them in
		// any order.
		pending := make([]*PendingCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			pc := newPendingCall(sess.ID, tc.ID, tc.Name, json.RawMessage(tc.Arguments))
			s.mu.Lock()
			s.calls[pc.ID] = pc
			s.mu.Unlock()
			pending[i] = pc

			emit(Event{
				Type:   EventApprovalRequired,
				CallID: tc.ID,
				Tool:   tc.Name,
				Args:   json.RawMessage(tc.Arguments),
				Diff:   s.diffFor(ctx, scanID, tc),
			})
			log.Info("tool call awaiting approval", "call_id", tc.ID, "tool", tc.Name)
		}

		mutated := false
		for i, pc := range pending {
			tc := msg.ToolCalls[i]
			select {
			case approved := <-pc.decision:
				if !approved {
					sess.history = append(sess.history, ai.Message{
						Role:       ai.RoleTool,
						ToolCallID: tc.ID,
						Content:    deniedMarker,
					})
					emit(Event{Type: EventDenied, CallID: tc.ID, Tool: tc.Name})
					log.Info("tool call denied", "call_id", tc.ID)
					continue
				}

				result, didMutate, execErr := s.executeTool(ctx, scanID, tc)
				pc.setExecuted()
				content, isErr := result, false
				if execErr != nil {
					// Tool errors feed the conversation so the model
					// can explain them; they never fail the turn.
					content, isErr = "Error: "+execErr.Error(), true
				}
				sess.history = append(sess.history, ai.Message{
					Role:       ai.RoleTool,
					ToolCallID: tc.ID,
					Content:    content,
				})
				emit(Event{Type: EventToolResult, CallID: tc.ID, Tool: tc.Name, Text: content, IsError: isErr})
				log.Info("tool call executed", "call_id", tc.ID, "error", isErr)
				if didMutate {
					mutated = true
				}

			case <-ctx.Done():
				// Client gone mid-approval; orphaned calls are dropped
				// so a late resolution reports not-found rather than
				// mutating without an audience.
				s.dropCalls(pending)
				return ctx.Err()
			}
		}

		if mutated {
			emit(Event{Type: EventFeaturesInvalidated, SessionID: sess.ID})
		}
		// Loop: the model reacts to the tool outcomes.
	}

	err = fmt.Errorf("turn exceeded %d model invocations", maxTurnSteps)
	emit(Event{Type: EventError, Text: err.Error(), IsError: true})
	return err
}

// Resolve feeds a human decision into a pending call. Exactly one
// resolution is accepted per call id.
func (s *Service) Resolve(callID string, approved bool) error {
	s.mu.Lock()
	pc, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return ErrCallNotFound
	}
	return pc.resolve(approved)
}

// CallState reports the lifecycle state of a known call id.
func (s *Service) CallState(callID string) (CallState, error) {
	s.mu.Lock()
	pc, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return "", ErrCallNotFound
	}
	return pc.State(), nil
}

func (s *Service) dropCalls(calls []*PendingCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pc := range calls {
		delete(s.calls, pc.ID)
	}
}

// systemPrompt assembles the agent instructions from scan context plus
// the current feature set, so every turn sees mutations applied so far.
func (s *Service) systemPrompt(ctx context.Context, scan *domain.Scan) (string, error) {
	p, err := s.Prompts.Get(ctx, prompt.GherkinChatAgentName)
	if err != nil {
		return "", err
	}

	snap := scan.Snapshot
	if snap == nil {
		snap = &domain.PageSnapshot{Title: "Unknown", Content: "No content available"}
	}
	elementsJSON, err := json.MarshalIndent(snap.InteractiveElements, "", "  ")
	if err != nil {
		return "", err
	}

	existing, err := s.Features.ListByScan(ctx, string(scan.ID))
	if err != nil {
		return "", err
	}

	return p.Compile(map[string]string{
		"url":              scan.URL,
		"scanDataTitle":    snap.Title,
		"scanDataJson":     prompt.Truncate(string(elementsJSON), maxElementsJSON),
		"scanDataContent":  prompt.Truncate(snap.Content, maxContentChars),
		"existingFeatures": renderFeatures(existing),
	}), nil
}

func renderFeatures(list []*features.Feature) string {
	if len(list) == 0 {
		return "No existing features."
	}
	out := ""
	for _, f := range list {
		out += fmt.Sprintf("\nFeature: %s\nDescription: %s\nContent:\n%s\n-------------------\n", f.Title, f.Description, f.Content)
	}
	return out
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bryanwahyu/gherkin-agent/internal/domain/ai"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
)

// Tool names exposed to the model. Each call is gated by human approval.
const (
	ToolAddFeature    = "addFeature"
	ToolUpdateFeature = "updateFeature"
	ToolDeleteFeature = "deleteFeature"
)

func toolDefs() []ai.ToolDef {
	return []ai.ToolDef{
		{
			Name:        ToolAddFeature,
			Description: "Add a new Gherkin feature file to the database",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string", "description": "The title of the feature"},
					"description": map[string]any{"type": "string", "description": "A brief description"},
					"file_path":   map[string]any{"type": "string", "description": "The file path, e.g., features/login.feature"},
					"content":     map[string]any{"type": "string", "description": "The full Gherkin content"},
				},
				"required": []string{"title", "description", "file_path", "content"},
			},
		},
		{
			Name:        ToolUpdateFeature,
			Description: "Update an existing Gherkin feature file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"old_title":   map[string]any{"type": "string", "description": "The current title of the feature to find"},
					"new_title":   map[string]any{"type": "string"},
					"new_content": map[string]any{"type": "string"},
				},
				"required": []string{"old_title"},
			},
		},
		{
			Name:        ToolDeleteFeature,
			Description: "Delete a Gherkin feature file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string", "description": "The title of the feature to delete"},
				},
				"required": []string{"title"},
			},
		},
	}
}

type addFeatureArgs struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FilePath    string `json:"file_path"`
	Content     string `json:"content"`
}

type updateFeatureArgs struct {
	OldTitle   string  `json:"old_title"`
	NewTitle   *string `json:"new_title,omitempty"`
	NewContent *string `json:"new_content,omitempty"`
}

type deleteFeatureArgs struct {
	Title string `json:"title"`
}

// executeTool runs an approved tool body. Returns the confirmation
// message, whether persisted data changed, and any tool-level error.
// Tool errors surface back into the conversation, never escalated.
func (s *Service) executeTool(ctx context.Context, scanID string, call ai.ToolCall) (string, bool, error) {
	switch call.Name {
	case ToolAddFeature:
		var args addFeatureArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", false, fmt.Errorf("invalid %s arguments: %w", call.Name, err)
		}
		f := &features.Feature{
			ID:          uuid.New().String(),
			ScanID:      scanID,
			Title:       args.Title,
			Description: args.Description,
			FilePath:    args.FilePath,
			Content:     args.Content,
			CreatedAt:   s.Clock.Now(),
		}
		if err := s.Features.Insert(ctx, f); err != nil {
			return "", false, fmt.Errorf("failed to add feature: %w", err)
		}
		return fmt.Sprintf("Feature %q added successfully.", args.Title), true, nil

	case ToolUpdateFeature:
		var args updateFeatureArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", false, fmt.Errorf("invalid %s arguments: %w", call.Name, err)
		}
		existing, err := s.Features.GetByTitle(ctx, scanID, args.OldTitle)
		if err != nil {
			if errors.Is(err, features.ErrFeatureNotFound) {
				return "", false, fmt.Errorf("feature %q not found", args.OldTitle)
			}
			return "", false, fmt.Errorf("failed to look up feature: %w", err)
		}
		if err := s.Features.Update(ctx, existing.ID, args.NewTitle, args.NewContent); err != nil {
			return "", false, fmt.Errorf("failed to update feature: %w", err)
		}
		return fmt.Sprintf("Feature %q updated.", args.OldTitle), true, nil

	case ToolDeleteFeature:
		var args deleteFeatureArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", false, fmt.Errorf("invalid %s arguments: %w", call.Name, err)
		}
		n, err := s.Features.DeleteByTitle(ctx, scanID, args.Title)
		if err != nil {
			return "", false, fmt.Errorf("failed to delete feature: %w", err)
		}
		if n == 0 {
			// Deliberate no-op: deleting a missing feature is not an error.
			return fmt.Sprintf("No feature titled %q existed; nothing deleted.", args.Title), false, nil
		}
		return fmt.Sprintf("Feature %q deleted.", args.Title), true, nil

	default:
		return "", false, fmt.Errorf("unknown tool %q", call.Name)
	}
}

// diffFor builds the approve/deny diff payload for a proposed call:
// empty old for adds, empty new for deletes, current content as old for
// updates. Lookup failures degrade to an empty old side; the execute
// body re-checks and reports properly.
func (s *Service) diffFor(ctx context.Context, scanID string, call ai.ToolCall) *Diff {
	switch call.Name {
	case ToolAddFeature:
		var args addFeatureArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil
		}
		return &Diff{Title: args.Title, Old: "", New: args.Content}

	case ToolUpdateFeature:
		var args updateFeatureArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil
		}
		d := &Diff{Title: args.OldTitle}
		if existing, err := s.Features.GetByTitle(ctx, scanID, args.OldTitle); err == nil {
			d.Old = existing.Content
			d.New = existing.Content
		}
		if args.NewContent != nil {
			d.New = *args.NewContent
		}
		return d

	case ToolDeleteFeature:
		var args deleteFeatureArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil
		}
		d := &Diff{Title: args.Title}
		if existing, err := s.Features.GetByTitle(ctx, scanID, args.Title); err == nil {
			d.Old = existing.Content
		}
		return d

	default:
		return nil
	}
}

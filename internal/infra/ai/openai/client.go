package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	domai "github.com/bryanwahyu/gherkin-agent/internal/domain/ai"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/ai/prompt"
	"github.com/bryanwahyu/gherkin-agent/internal/infra/prompts"
)

const maxTokens = 4096

// Prompt-size control: elements JSON and visible text are capped before
// they enter the template. Model output is never truncated.
const (
	maxElementsJSON = 8000
	maxContentChars = 4000
)

// PromptSource resolves named prompt templates (remote store or fallback).
type PromptSource interface {
	Get(ctx context.Context, name string) (prompts.Prompt, error)
}

type Client struct {
	*openai.Client
	Model   string
	Prompts PromptSource
	Log     *slog.Logger
}

func NewClient(apiKey, model string, promptSrc PromptSource, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{Client: openai.NewClient(apiKey), Model: model, Prompts: promptSrc, Log: log}
}

func (c *Client) model() string {
	if c.Model == "" {
		return openai.GPT4o
	}
	return c.Model
}

// synthesisResponse is the fixed output schema of the synthesizer call.
type synthesisResponse struct {
	Features []features.Draft `json:"features"`
}

// Synthesize builds the generator prompt from the snapshot and asks the
// model for a schema-conforming feature list. Gherkin content is passed
// through verbatim. No retries; the orchestrator decides retry policy.
func (c *Client) Synthesize(ctx context.Context, url string, snap *domain.PageSnapshot, existing []*features.Feature) ([]features.Draft, error) {
	p, err := c.Prompts.Get(ctx, prompt.GherkinGeneratorName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}

	elementsJSON, err := json.MarshalIndent(snap.InteractiveElements, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal elements: %v", domain.ErrSynthesisFailed, err)
	}

	vars := map[string]string{
		"url":              url,
		"scanDataTitle":    snap.Title,
		"scanDataJson":     prompt.Truncate(string(elementsJSON), maxElementsJSON),
		"scanDataContent":  prompt.Truncate(snap.Content, maxContentChars),
		"existingFeatures": RenderFeatures(existing),
	}
	userPrompt := p.Compile(vars)
	c.Log.Debug("synthesizing features", "url", url, "prompt_source", p.Source, "prompt_version", p.Version)

	req := openai.ChatCompletionRequest{
		Model: c.model(),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful AI assistant that generates Gherkin syntax."},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	applyTokenLimit(&req)

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, mapAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", domain.ErrSynthesisFailed)
	}

	var out synthesisResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisSchema, err)
	}
	if err := ValidateDrafts(out.Features); err != nil {
		return nil, err
	}
	return out.Features, nil
}

// ValidateDrafts enforces the output schema: every element carries all
// four fields as non-empty strings. Violations are hard failures, never
// silently coerced.
func ValidateDrafts(drafts []features.Draft) error {
	for i, d := range drafts {
		switch {
		case d.Title == "":
			return fmt.Errorf("%w: feature %d missing title", domain.ErrSynthesisSchema, i)
		case d.Description == "":
			return fmt.Errorf("%w: feature %d (%s) missing description", domain.ErrSynthesisSchema, i, d.Title)
		case d.FilePath == "":
			return fmt.Errorf("%w: feature %d (%s) missing file_path", domain.ErrSynthesisSchema, i, d.Title)
		case d.Content == "":
			return fmt.Errorf("%w: feature %d (%s) missing content", domain.ErrSynthesisSchema, i, d.Title)
		}
	}
	return nil
}

// RenderFeatures serializes existing features as plain text for prompt
// context, matching the store's text rendering.
func RenderFeatures(list []*features.Feature) string {
	if len(list) == 0 {
		return "No existing features."
	}
	var b strings.Builder
	for _, f := range list {
		fmt.Fprintf(&b, "\nFeature: %s\nDescription: %s\nContent:\n%s\n-------------------\n", f.Title, f.Description, f.Content)
	}
	return b.String()
}

// Complete implements the domain ChatModel port: one model invocation
// with the given tool set, returning text and/or tool calls.
func (c *Client) Complete(ctx context.Context, system string, history []domai.Message, tools []domai.ToolDef) (domai.Message, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range history {
		msgs = append(msgs, toOpenAIMessage(m))
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model(),
		Messages: msgs,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	applyTokenLimit(&req)

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return domai.Message{}, mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return domai.Message{}, errors.New("empty chat completion response")
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func toOpenAIMessage(m domai.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) domai.Message {
	out := domai.Message{Role: m.Role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domai.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
func applyTokenLimit(req *openai.ChatCompletionRequest) {
	m := req.Model
	if strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}
}

func mapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, err)
	}
	return err
}

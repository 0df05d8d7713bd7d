// Package llm wraps the text-completion collaborator behind a small
// interface. Concepts that need generated text (AI recipe scaling, scaling
// tips) depend on Client, never on a vendor SDK, so tests substitute a
// scripted fake.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sashabaranov/go-openai"
)

// Client is a black-box text-completion service: one prompt in, one text
// response out. Malformed or structured-output failures are the caller's
// problem; the client only reports transport-level errors.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from the given model name and the
// OPENAI_API_KEY environment variable.
func NewOpenAIClient(model string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("no model configured, defaulting", "model", model)
	}
	slog.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Complete implements Client.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	slog.Debug("requesting completion", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	slog.Debug("completion received", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Disabled is a Client for deployments without a language model. Every
// completion fails, so the AI paths surface their normal error records
// while everything else keeps working.
type Disabled struct{}

// Complete implements Client.
func (Disabled) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("no language model configured")
}

// Scripted is a fake Client returning canned responses in order. Tests use
// it to exercise the AI-scaling and tip-generation paths deterministically.
type Scripted struct {
	Responses []string
	Err       error
	calls     int
	Prompts   []string
}

// Complete returns the next scripted response, recording the prompt.
func (s *Scripted) Complete(ctx context.Context, prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	if s.calls >= len(s.Responses) {
		return "", fmt.Errorf("scripted client: all %d responses consumed", len(s.Responses))
	}
	resp := s.Responses[s.calls]
	s.calls++
	return resp, nil
}

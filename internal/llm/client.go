// Package llm wraps the language-model API behind a small client interface
// and provides tolerant JSON extraction for model replies.
package llm

import (
	"context"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}

// Request is one completion call. JSONMode asks the provider to constrain
// output to a JSON object where supported; callers still extract defensively.
type Request struct {
	Messages []Message
	JSONMode bool
}

// TokenUsage reports token consumption of a single call, recorded in the
// per-job run log.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completion result.
type Response struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// Client is the minimal surface pipelines depend on. The production
// implementation is OpenAIClient; tests substitute a scripted mock.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// SystemUser builds the common two-message request shape.
func SystemUser(system, user string) []Message {
	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

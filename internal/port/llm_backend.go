package port

import "context"

// CompletionRequest is a single structured-output call to a language model.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	JSONSchema   map[string]any
	SchemaName   string
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse carries the raw model answer and its token usage.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// LLMBackend abstracts one model family's API.
type LLMBackend interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

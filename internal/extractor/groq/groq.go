// Package groq serves the Llama models through Groq's OpenAI-compatible API.
package groq

import (
	"context"
	"errors"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/port"
)

const backendName = "groq"

func init() {
	extractor.RegisterBackend(domain.FamilyGroq, func(cfg *config.ExtractorConfig) (port.LLMBackend, error) {
		return New(&cfg.Groq)
	})
}

// Backend implements port.LLMBackend against Groq.
type Backend struct {
	client *goopenai.Client
	model  string
}

// New creates a Groq backend. Every Llama id is served by cfg.Model.
func New(cfg *config.BackendConfig) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: groq api key not set", domain.ErrModelUnavailable)
	}
	transport := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		transport.BaseURL = cfg.BaseURL
	}
	served := cfg.Model
	if served == "" {
		served = "llama-3.1-70b-versatile"
	}
	return &Backend{
		client: goopenai.NewClientWithConfig(transport),
		model:  served,
	}, nil
}

func (b *Backend) Name() string { return backendName }

// Complete sends one chat completion in JSON mode.
func (b *Backend) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	// The client drops a zero temperature from the request body.
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := b.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: b.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, extractor.BackendError(backendName, errors.New("no choices in response"))
	}

	return &port.CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return extractor.ClassifyHTTPError(backendName, apiErr.HTTPStatusCode, nil, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return extractor.ClassifyHTTPError(backendName, reqErr.HTTPStatusCode, nil, err)
	}
	return extractor.BackendError(backendName, err)
}

// Package gemini serves Gemini models through Vertex AI.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/port"
)

const backendName = "gemini"

func init() {
	extractor.RegisterBackend(domain.FamilyGemini, func(cfg *config.ExtractorConfig) (port.LLMBackend, error) {
		return New(context.Background(), &cfg.Gemini)
	})
}

// Backend implements port.LLMBackend using Vertex AI generative models.
type Backend struct {
	client *genai.Client
}

// New creates a Vertex AI client for the configured project and region.
func New(ctx context.Context, cfg *config.GeminiConfig) (*Backend, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: gemini project_id and region not set", domain.ErrModelUnavailable)
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("%w: genai.NewClient: %v", domain.ErrModelUnavailable, err)
	}
	return &Backend{client: client}, nil
}

func (b *Backend) Name() string { return backendName }

// Close releases the underlying gRPC connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Complete generates a single JSON answer constrained by the response schema.
func (b *Backend) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	model := b.client.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(req.MaxTokens))
	}
	if req.JSONSchema != nil {
		model.GenerationConfig.ResponseSchema = toSchema(req.JSONSchema)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
	if err != nil {
		return nil, classify(err)
	}
	content, err := collectText(resp)
	if err != nil {
		return nil, extractor.BackendError(backendName, err)
	}

	out := &port.CompletionResponse{Content: content, Model: req.Model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func collectText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates in response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty candidate (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func classify(err error) error {
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return extractor.NewRateLimitError(backendName, err, 0)
	}
	return extractor.BackendError(backendName, err)
}

// toSchema converts the JSON schema subset produced by the schema package
// into the Vertex AI schema type.
func toSchema(m map[string]any) *genai.Schema {
	s := &genai.Schema{}
	switch m["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(child)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	switch r := m["required"].(type) {
	case []string:
		s.Required = r
	case []any:
		for _, v := range r {
			if name, ok := v.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	return s
}

// Package openai serves the GPT models through the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/port"
)

const backendName = "openai"

// Models that accept a json_schema response format. Older chat models only
// get the schema through the prompt.
var structuredOutput = map[string]bool{
	string(domain.ModelGPT4o):     true,
	string(domain.ModelGPT4oMini): true,
}

func init() {
	extractor.RegisterBackend(domain.FamilyOpenAI, func(cfg *config.ExtractorConfig) (port.LLMBackend, error) {
		return New(&cfg.OpenAI)
	})
}

// Backend implements port.LLMBackend using the OpenAI chat completions API.
type Backend struct {
	client oai.Client
}

// New creates an OpenAI backend. Retries are disabled so every extraction
// maps to exactly one model call.
func New(cfg *config.BackendConfig) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", domain.ErrModelUnavailable)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Backend{client: oai.NewClient(opts...)}, nil
}

func (b *Backend) Name() string { return backendName }

// Complete sends one chat completion request.
func (b *Backend) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(req.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(req.SystemPrompt),
			oai.UserMessage(req.UserPrompt),
		},
		Temperature: oai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}
	if req.JSONSchema != nil && structuredOutput[req.Model] {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &oai.ResponseFormatJSONSchemaParam{
				JSONSchema: oai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.JSONSchema,
					Strict: oai.Bool(false),
				},
			},
		}
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			var header http.Header
			if apiErr.Response != nil {
				header = apiErr.Response.Header
			}
			return nil, extractor.ClassifyHTTPError(backendName, apiErr.StatusCode, header, err)
		}
		return nil, extractor.BackendError(backendName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, extractor.BackendError(backendName, errors.New("no choices in response"))
	}

	return &port.CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

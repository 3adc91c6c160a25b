// Package anthropic serves Claude models through the Anthropic messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/port"
)

const backendName = "anthropic"

// Anthropic has no response_format; the schema is forced through a single tool.
const toolName = "extract_bill_of_lading"

func init() {
	extractor.RegisterBackend(domain.FamilyAnthropic, func(cfg *config.ExtractorConfig) (port.LLMBackend, error) {
		return New(&cfg.Anthropic)
	})
}

// Backend implements port.LLMBackend using the Anthropic Messages API.
type Backend struct {
	client sdk.Client
	model  string
}

// New creates an Anthropic backend. cfg.Model is the dated model served for
// claude-sonnet-4.
func New(cfg *config.BackendConfig) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key not set", domain.ErrModelUnavailable)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(sdk.ModelClaudeSonnet4_20250514)
	}
	return &Backend{client: sdk.NewClient(opts...), model: model}, nil
}

func (b *Backend) Name() string { return backendName }

// Complete sends one message and returns the tool input as JSON.
func (b *Backend) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(b.model),
		MaxTokens:   int64(maxTokens),
		Temperature: sdk.Float(req.Temperature),
		System:      []sdk.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.JSONSchema != nil {
		properties, _ := req.JSONSchema["properties"].(map[string]any)
		params.Tools = []sdk.ToolUnionParam{{
			OfTool: &sdk.ToolParam{
				Name:        toolName,
				Description: sdk.String("Record the fields of the bill of lading"),
				InputSchema: sdk.ToolInputSchemaParam{
					Type:       "object",
					Properties: properties,
					Required:   requiredFields(req.JSONSchema["required"]),
				},
			},
		}}
		params.ToolChoice = sdk.ToolChoiceParamOfTool(toolName)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			var header http.Header
			if apiErr.Response != nil {
				header = apiErr.Response.Header
			}
			return nil, extractor.ClassifyHTTPError(backendName, apiErr.StatusCode, header, err)
		}
		return nil, extractor.BackendError(backendName, err)
	}

	var content string
	for _, block := range resp.Content {
		switch blk := block.AsAny().(type) {
		case sdk.TextBlock:
			if content == "" {
				content = blk.Text
			}
		case sdk.ToolUseBlock:
			raw, err := json.Marshal(blk.Input)
			if err != nil {
				return nil, extractor.BackendError(backendName, fmt.Errorf("marshal tool input: %w", err))
			}
			content = string(raw)
		}
	}

	return &port.CompletionResponse{
		Content:      content,
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

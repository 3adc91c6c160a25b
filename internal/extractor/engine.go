// Package extractor turns document text into a validated BillOfLading by
// calling a language model with schema-constrained output.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"docai/internal/domain"
	"docai/internal/port"
	"docai/internal/schema"
)

const maxRawOutput = 2000

// Options tune every extraction call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Result is the outcome of one extraction.
type Result struct {
	BillOfLading *domain.BillOfLading
	Usage        domain.ExtractionUsage
	BackendModel string
}

// Extractor is the contract the pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, documentText string, model domain.ExtractorModel) (*Result, error)
	Available(model domain.ExtractorModel) bool
}

// Engine selects a backend by model and enforces the schema on its answer.
type Engine struct {
	schema   *schema.Definition
	backends map[domain.ModelFamily]port.LLMBackend
	throttle *throttle
	opts     Options
}

// NewEngine creates an Engine over the given backends.
func NewEngine(def *schema.Definition, backends map[domain.ModelFamily]port.LLMBackend, opts Options) *Engine {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Engine{
		schema:   def,
		backends: backends,
		throttle: newThrottle(),
		opts:     opts,
	}
}

// Available reports whether the model is supported and its backend configured.
func (e *Engine) Available(model domain.ExtractorModel) bool {
	family, ok := domain.SupportedModels[model]
	if !ok {
		return false
	}
	_, ok = e.backends[family]
	return ok
}

// Extract invokes the model once. No partial result is returned on failure.
func (e *Engine) Extract(ctx context.Context, documentText string, model domain.ExtractorModel) (*Result, error) {
	family, ok := domain.SupportedModels[model]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity_extractor %q", domain.ErrInvalidConfig, model)
	}
	backend, ok := e.backends[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s backend not configured)", domain.ErrModelUnavailable, model, family)
	}

	if wait, open := e.throttle.check(model); open {
		log.Info().Str("component", "extractor").Str("model", string(model)).Dur("retry_after", wait).Msg("skipping call, model is rate limited")
		return nil, NewRateLimitError(backend.Name(), fmt.Errorf("model %s is cooling down", model), int(wait.Seconds()+1))
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := backend.Complete(ctx, port.CompletionRequest{
		Model:        string(model),
		SystemPrompt: BuildSystemPrompt(e.schema.FormatInstructions()),
		UserPrompt:   BuildUserPrompt(documentText),
		JSONSchema:   e.schema.JSONSchema(),
		SchemaName:   "bill_of_lading",
		Temperature:  e.opts.Temperature,
		MaxTokens:    e.opts.MaxTokens,
	})
	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			e.throttle.trip(model, rl.RetryAfter)
			return nil, err
		}
		return nil, BackendError(backend.Name(), err)
	}

	usage := Usage(model, resp.InputTokens, resp.OutputTokens)
	log.Debug().Str("component", "extractor").Str("model", string(model)).Str("backend_model", resp.Model).
		Int("total_tokens", usage.TotalTokens).Float64("total_cost", usage.TotalCost).
		Dur("duration", time.Since(start)).Msg("model call completed")

	bol, err := e.schema.Parse(resp.Content)
	if err != nil {
		return nil, &domain.ExtractionParseError{
			Model:  model,
			Reason: err.Error(),
			Raw:    truncate(resp.Content, maxRawOutput),
		}
	}

	return &Result{BillOfLading: bol, Usage: usage, BackendModel: resp.Model}, nil
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

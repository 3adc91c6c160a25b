package extractor

import "docai/internal/domain"

// modelPricing is USD per token.
type modelPricing struct {
	prompt     float64
	completion float64
}

var pricing = map[domain.ExtractorModel]modelPricing{
	domain.ModelGPT4o:         {2.50 / 1_000_000, 10.0 / 1_000_000},
	domain.ModelGPT4oMini:     {0.15 / 1_000_000, 0.60 / 1_000_000},
	domain.ModelGPT4:          {30.0 / 1_000_000, 60.0 / 1_000_000},
	domain.ModelLlama31:       {0.59 / 1_000_000, 0.79 / 1_000_000},
	domain.ModelLlama3:        {0.59 / 1_000_000, 0.79 / 1_000_000},
	domain.ModelClaudeSonnet4: {3.0 / 1_000_000, 15.0 / 1_000_000},
	domain.ModelGemini15Pro:   {1.25 / 1_000_000, 5.0 / 1_000_000},
}

// EstimateCost returns the USD cost of one call. Unknown models cost 0.
func EstimateCost(model domain.ExtractorModel, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)*p.prompt + float64(outputTokens)*p.completion
}

// Usage builds the per-call usage record.
func Usage(model domain.ExtractorModel, inputTokens, outputTokens int) domain.ExtractionUsage {
	return domain.ExtractionUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		TotalCost:    EstimateCost(model, inputTokens, outputTokens),
	}
}

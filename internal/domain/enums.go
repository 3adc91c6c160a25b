package domain

// ParserVariant selects the DocumentLoader implementation.
type ParserVariant string

const (
	// ParserFastLocal extracts text in-process from the PDF byte stream.
	ParserFastLocal ParserVariant = "pymupdf"
	// ParserRemoteLayoutAware sends the file to a layout-aware parsing service.
	ParserRemoteLayoutAware ParserVariant = "llama_parse"
)

// AllowedParserVariants lists the accepted parser_type values.
var AllowedParserVariants = map[ParserVariant]bool{
	ParserFastLocal:         true,
	ParserRemoteLayoutAware: true,
}

// ExtractorModel identifies the language model used for entity extraction.
type ExtractorModel string

const (
	ModelGPT4o         ExtractorModel = "gpt-4o"
	ModelGPT4oMini     ExtractorModel = "gpt-4o-mini"
	ModelGPT4          ExtractorModel = "gpt-4"
	ModelLlama31       ExtractorModel = "llama3.1"
	ModelLlama3        ExtractorModel = "llama3"
	ModelClaudeSonnet4 ExtractorModel = "claude-sonnet-4"
	ModelGemini15Pro   ExtractorModel = "gemini-1.5-pro"
)

// ModelFamily groups models served by the same backend.
type ModelFamily string

const (
	FamilyOpenAI    ModelFamily = "openai"
	FamilyGroq      ModelFamily = "groq"
	FamilyAnthropic ModelFamily = "anthropic"
	FamilyGemini    ModelFamily = "gemini"
)

// SupportedModels maps every accepted entity_extractor value to its backend family.
var SupportedModels = map[ExtractorModel]ModelFamily{
	ModelGPT4o:         FamilyOpenAI,
	ModelGPT4oMini:     FamilyOpenAI,
	ModelGPT4:          FamilyOpenAI,
	ModelLlama31:       FamilyGroq,
	ModelLlama3:        FamilyGroq,
	ModelClaudeSonnet4: FamilyAnthropic,
	ModelGemini15Pro:   FamilyGemini,
}

// Defaults applied when an upload omits its processing configuration.
const (
	DefaultParserVariant  = ParserFastLocal
	DefaultExtractorModel = ModelGPT4oMini
)

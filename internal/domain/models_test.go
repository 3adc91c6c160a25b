package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docai/internal/domain"
)

func TestNewProcessingConfig_Defaults(t *testing.T) {
	cfg, err := domain.NewProcessingConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ParserFastLocal, cfg.ParserType)
	assert.Equal(t, domain.ModelGPT4oMini, cfg.EntityExtractor)
}

func TestNewProcessingConfig_RejectsUnknownValues(t *testing.T) {
	_, err := domain.NewProcessingConfig("tesseract", "gpt-4o")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = domain.NewProcessingConfig("pymupdf", "gpt-5-ultra")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "gpt-5-ultra")
}

func TestProcessingConfig_Canonical(t *testing.T) {
	cfg := domain.ProcessingConfig{ParserType: domain.ParserRemoteLayoutAware, EntityExtractor: domain.ModelLlama31}
	assert.Equal(t, `{"parser_type":"llama_parse","entity_extractor":"llama3.1"}`, string(cfg.Canonical()))
}

func TestShippingRecord_JSONShape(t *testing.T) {
	rec := domain.ShippingRecord{
		TaskID: "abc",
		BillOfLading: domain.BillOfLading{
			Vessel:   "MSC Aurora",
			Packages: []domain.PackageDetails{{Description: "Cartons", Quantity: 10, GrossWeight: "120 kg"}},
		},
		ParsedContent: "text",
		MetaInfo:      domain.MetaInfo{DocumentName: "bol.pdf", TotalTokens: 42},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "abc", m["task_id"])
	assert.Equal(t, "MSC Aurora", m["vessel"])
	assert.NotContains(t, m, "BillOfLading")
	meta := m["meta_info"].(map[string]interface{})
	assert.Equal(t, "bol.pdf", meta["document_name"])
	pkg := m["packages"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, pkg, "seal_number")
}

func TestErrorTaxonomy_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unsupported format", &domain.UnsupportedFormatError{Filename: "a.docx", Expected: ".pdf", Actual: ".docx"}, domain.ErrUnsupportedFormat},
		{"backend", &domain.ExtractionBackendError{Backend: "llama_parse", Err: errors.New("timeout")}, domain.ErrExtractionBackend},
		{"parse", &domain.ExtractionParseError{Model: domain.ModelGPT4o, Reason: "missing vessel"}, domain.ErrExtractionParse},
		{"store", &domain.StoreUnavailableError{Op: "find", Err: errors.New("conn refused")}, domain.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestExtractionBackendError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &domain.ExtractionBackendError{Backend: "openai", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "openai backend error: connection reset", err.Error())
}

func TestUnsupportedFormatError_Message(t *testing.T) {
	err := &domain.UnsupportedFormatError{Filename: "bol.docx", Expected: ".pdf", Actual: ".docx"}
	assert.Equal(t, "unsupported file format uploaded: expected .pdf, uploaded .docx (bol.docx)", err.Error())
}

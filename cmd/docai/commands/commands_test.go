package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"docai/internal/config"
	"docai/internal/contentkey"
	"docai/internal/domain"
	"docai/internal/service"
	"docai/mocks"
)

var defaultCfg = domain.ProcessingConfig{ParserType: domain.ParserFastLocal, EntityExtractor: domain.ModelGPT4oMini}

func TestComputeKey_FilenameStrategyUsesBaseName(t *testing.T) {
	key, err := computeKey("/tmp/in/bol.pdf", "", "", config.IdentityFilename, "")
	require.NoError(t, err)
	assert.Equal(t, contentkey.ComputeKey(defaultCfg, "bol.pdf"), key)
	assert.Len(t, key, 64)
}

func TestComputeKey_ContentStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bol.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600))

	key, err := computeKey("bol.pdf", "pymupdf", "gpt-4o-mini", config.IdentityContent, path)
	require.NoError(t, err)
	assert.Equal(t, contentkey.ComputeContentKey(defaultCfg, []byte("%PDF-1.4 body")), key)

	_, err = computeKey("bol.pdf", "", "", config.IdentityContent, "")
	assert.ErrorContains(t, err, "--file is required")
}

func TestComputeKey_RejectsUnknownModel(t *testing.T) {
	_, err := computeKey("bol.pdf", "", "gpt-2", config.IdentityFilename, "")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestExtractFiles_PreservesOrderAndIsolatesFailures(t *testing.T) {
	svc := new(mocks.MockExtractionService)
	svc.On("Process", mock.Anything, mock.MatchedBy(func(in *service.ProcessInput) bool { return in.Filename == "a.pdf" })).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(&service.ProcessResult{TaskID: "ka", Record: &domain.ShippingRecord{TaskID: "ka"}, State: service.StatePersisted}, nil)
	svc.On("Process", mock.Anything, mock.MatchedBy(func(in *service.ProcessInput) bool { return in.Filename == "b.pdf" })).
		Return(nil, &domain.ExtractionParseError{Model: domain.ModelGPT4oMini, Reason: "vessel is required"})
	svc.On("Process", mock.Anything, mock.MatchedBy(func(in *service.ProcessInput) bool { return in.Filename == "c.pdf" })).
		Return(&service.ProcessResult{TaskID: "kc", Record: &domain.ShippingRecord{TaskID: "kc"}, State: service.StateCached}, nil)

	readFile := func(path string) ([]byte, error) {
		if path == "missing.pdf" {
			return nil, os.ErrNotExist
		}
		return []byte("%PDF"), nil
	}

	results := extractFiles(context.Background(), svc, []string{"dir/a.pdf", "b.pdf", "missing.pdf", "c.pdf"}, defaultCfg, 3, readFile)

	require.Len(t, results, 4)
	assert.Equal(t, "ka", results[0].TaskID)
	assert.False(t, results[0].Cached)
	assert.Contains(t, results[1].Error, "vessel is required")
	assert.NotEmpty(t, results[2].Error)
	assert.Equal(t, "kc", results[3].TaskID)
	assert.True(t, results[3].Cached)
	assert.Equal(t, 2, countFailed(results))
}

type countingService struct {
	*mocks.MockExtractionService
	inFlight, peak atomic.Int32
}

func (c *countingService) Process(ctx context.Context, in *service.ProcessInput) (*service.ProcessResult, error) {
	n := c.inFlight.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	c.inFlight.Add(-1)
	return nil, errors.New("stop")
}

func TestExtractFiles_BoundedConcurrency(t *testing.T) {
	svc := &countingService{MockExtractionService: new(mocks.MockExtractionService)}
	paths := []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf", "6.pdf"}

	results := extractFiles(context.Background(), svc, paths, defaultCfg, 2, func(string) ([]byte, error) { return []byte("x"), nil })

	assert.Len(t, results, len(paths))
	assert.LessOrEqual(t, svc.peak.Load(), int32(2))
}

func TestWriteResults_YAMLUsesAPIFieldNames(t *testing.T) {
	results := []fileResult{{
		File:   "a.pdf",
		TaskID: "ka",
		Record: &domain.ShippingRecord{TaskID: "ka", BillOfLading: domain.BillOfLading{BLNumber: "BL-1"}},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "yaml", results))

	var out []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "ka", out[0]["task_id"])
	assert.Equal(t, "BL-1", out[0]["record"].(map[string]any)["bl_number"])
}

func TestWriteResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "json", []fileResult{{File: "b.pdf", Error: "boom"}}))
	assert.JSONEq(t, `[{"file":"b.pdf","cached":false,"error":"boom"}]`, buf.String())
}

func TestKeyCommand_PrintsKey(t *testing.T) {
	t.Setenv("DOCAI_IDENTITY_STRATEGY", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"key", "bol.pdf", "--model", "llama3.1"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())

	want := contentkey.ComputeKey(domain.ProcessingConfig{ParserType: domain.ParserFastLocal, EntityExtractor: domain.ModelLlama31}, "bol.pdf")
	assert.Equal(t, want+"\n", out.String())
}

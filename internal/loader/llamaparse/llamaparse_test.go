package llamaparse_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/loader/llamaparse"
	"docai/internal/port"
)

func newTestLoader(t *testing.T, serverURL, staging string) *llamaparse.Loader {
	t.Helper()
	l, err := llamaparse.New(&config.LoaderConfig{
		StagingDir: staging,
		LlamaParse: config.LlamaParseConfig{
			APIKey:       "llx-test",
			BaseURL:      serverURL,
			PollInterval: 10 * time.Millisecond,
			TimeoutSecs:  5,
		},
	})
	require.NoError(t, err)
	return l
}

func stagedFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := llamaparse.New(&config.LoaderConfig{})
	assert.ErrorIs(t, err, domain.ErrParserUnavailable)
}

func TestExtractText_Success(t *testing.T) {
	staging := t.TempDir()
	var polls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer llx-test", r.Header.Get("Authorization"))
		assert.Equal(t, 1, stagedFiles(t, staging), "upload reads from the staged copy")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "bol_123.pdf", header.Filename)
		assert.Equal(t, "%PDF-fake", string(body))

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "PENDING"})
	})
	mux.HandleFunc("/api/parsing/job/job-1", func(w http.ResponseWriter, r *http.Request) {
		status := "PENDING"
		if atomic.AddInt32(&polls, 1) >= 2 {
			status = "SUCCESS"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": status})
	})
	mux.HandleFunc("/api/parsing/job/job-1/result/markdown", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"markdown":     "# BILL OF LADING\n\n| Vessel | MSC Aurora |",
			"job_metadata": map[string]int{"job_pages": 2},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	out, err := newTestLoader(t, server.URL, staging).ExtractText(context.Background(),
		port.LoadInput{Filename: "bol_123.pdf", Content: []byte("%PDF-fake")})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "MSC Aurora")
	assert.Equal(t, 2, out.Pages)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(2))
	assert.Equal(t, 0, stagedFiles(t, staging))
}

func TestExtractText_UploadFailureCleansUp(t *testing.T) {
	staging := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream down"}`))
	}))
	defer server.Close()

	_, err := newTestLoader(t, server.URL, staging).ExtractText(context.Background(),
		port.LoadInput{Filename: "bol.pdf", Content: []byte("%PDF-fake")})

	require.ErrorIs(t, err, domain.ErrExtractionBackend)
	var be *domain.ExtractionBackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "llama_parse", be.Backend)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, 0, stagedFiles(t, staging))
}

func TestExtractText_JobError(t *testing.T) {
	staging := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2"})
	})
	mux.HandleFunc("/api/parsing/job/job-2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2", "status": "ERROR", "error_message": "unreadable"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := newTestLoader(t, server.URL, staging).ExtractText(context.Background(),
		port.LoadInput{Filename: "bol.pdf", Content: []byte("%PDF-fake")})

	assert.ErrorIs(t, err, domain.ErrExtractionBackend)
	assert.Contains(t, err.Error(), "unreadable")
	assert.Equal(t, 0, stagedFiles(t, staging))
}

func TestExtractText_ContextCancelled(t *testing.T) {
	staging := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-3"})
	})
	mux.HandleFunc("/api/parsing/job/job-3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-3", "status": "PENDING"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestLoader(t, server.URL, staging).ExtractText(ctx,
		port.LoadInput{Filename: "bol.pdf", Content: []byte("%PDF-fake")})

	assert.ErrorIs(t, err, domain.ErrExtractionBackend)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, stagedFiles(t, staging))
}

func TestExtractText_UnsupportedFormatSkipsStaging(t *testing.T) {
	staging := t.TempDir()
	l := newTestLoader(t, "http://127.0.0.1:0", staging)

	_, err := l.ExtractText(context.Background(), port.LoadInput{Filename: "bol.xlsx", Content: []byte("x")})

	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, 0, stagedFiles(t, staging))
}

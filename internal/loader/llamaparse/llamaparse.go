// Package llamaparse implements the remote layout-aware loader on top of
// the LlamaParse REST API.
package llamaparse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/loader"
	"docai/internal/port"
)

const backendName = "llama_parse"

// Job states reported by the service.
const (
	statusPending  = "PENDING"
	statusSuccess  = "SUCCESS"
	statusError    = "ERROR"
	statusCanceled = "CANCELED"
)

func init() {
	loader.Register(domain.ParserRemoteLayoutAware, func(cfg *config.LoaderConfig) (port.DocumentLoader, error) {
		return New(cfg)
	})
}

// Loader stages the upload on disk, sends it to LlamaParse and returns the markdown result.
type Loader struct {
	apiKey       string
	baseURL      string
	stagingDir   string
	pollInterval time.Duration
	timeout      time.Duration
	client       *http.Client
}

// New creates a Loader. It fails with domain.ErrParserUnavailable when no API key is set.
func New(cfg *config.LoaderConfig) (*Loader, error) {
	if cfg == nil || cfg.LlamaParse.APIKey == "" {
		return nil, fmt.Errorf("%w: llama_parse api key not set", domain.ErrParserUnavailable)
	}
	poll := cfg.LlamaParse.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	timeout := time.Duration(cfg.LlamaParse.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	staging := cfg.StagingDir
	if staging == "" {
		staging = os.TempDir()
	}
	return &Loader{
		apiKey:       cfg.LlamaParse.APIKey,
		baseURL:      strings.TrimRight(cfg.LlamaParse.BaseURL, "/"),
		stagingDir:   staging,
		pollInterval: poll,
		timeout:      timeout,
		client:       &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (l *Loader) Variant() domain.ParserVariant {
	return domain.ParserRemoteLayoutAware
}

func (l *Loader) ExtractText(ctx context.Context, input port.LoadInput) (*port.LoadOutput, error) {
	if err := loader.CheckFormat(input.Filename); err != nil {
		return nil, err
	}
	if len(input.Content) == 0 {
		return nil, domain.ErrEmptyFile
	}

	staged, err := l.stage(input)
	if err != nil {
		return nil, fmt.Errorf("llamaparse.ExtractText staging: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(staged); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Str("component", "loader.llamaparse").Str("path", staged).Err(rmErr).Msg("removing staged upload")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	jobID, err := l.upload(ctx, staged, input.Filename)
	if err != nil {
		return nil, backendError(err)
	}
	if err := l.wait(ctx, jobID); err != nil {
		return nil, backendError(err)
	}
	text, pages, err := l.markdown(ctx, jobID)
	if err != nil {
		return nil, backendError(err)
	}
	return &port.LoadOutput{Text: loader.CleanText(text), Pages: pages}, nil
}

func (l *Loader) stage(input port.LoadInput) (string, error) {
	if err := os.MkdirAll(l.stagingDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(l.stagingDir, "upload-*-"+filepath.Base(input.Filename))
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(input.Content); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error_message"`
}

func (l *Loader) upload(ctx context.Context, path, filename string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening staged file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading staged file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/parsing/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var job jobResponse
	if err := l.do(req, &job); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("upload: response carried no job id")
	}
	return job.ID, nil
}

func (l *Loader) wait(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/parsing/job/"+jobID, nil)
		if err != nil {
			return err
		}
		var job jobResponse
		if err := l.do(req, &job); err != nil {
			return fmt.Errorf("job status: %w", err)
		}

		switch strings.ToUpper(job.Status) {
		case statusSuccess:
			return nil
		case statusError, statusCanceled:
			return fmt.Errorf("job %s ended with status %s: %s", jobID, job.Status, job.Error)
		case statusPending, "":
		default:
			log.Debug().Str("component", "loader.llamaparse").Str("job_id", jobID).Str("status", job.Status).Msg("unexpected job status")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

type markdownResponse struct {
	Markdown    string `json:"markdown"`
	JobMetadata struct {
		JobPages int `json:"job_pages"`
	} `json:"job_metadata"`
}

func (l *Loader) markdown(ctx context.Context, jobID string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/parsing/job/"+jobID+"/result/markdown", nil)
	if err != nil {
		return "", 0, err
	}
	var res markdownResponse
	if err := l.do(req, &res); err != nil {
		return "", 0, fmt.Errorf("result: %w", err)
	}
	return res.Markdown, res.JobMetadata.JobPages, nil
}

func (l *Loader) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func backendError(err error) error {
	return &domain.ExtractionBackendError{Backend: backendName, Err: err}
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

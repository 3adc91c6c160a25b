// Package app assembles the extraction service graph shared by the HTTP
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"docai/internal/config"
	"docai/internal/contentkey"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/loader"
	"docai/internal/port"
	"docai/internal/repository"
	"docai/internal/schema"
	"docai/internal/service"
	s3storage "docai/internal/storage/s3"

	// Loader variants and model backends register themselves.
	_ "docai/internal/extractor/anthropic"
	_ "docai/internal/extractor/gemini"
	_ "docai/internal/extractor/groq"
	_ "docai/internal/extractor/openai"
	_ "docai/internal/loader/llamaparse"
	_ "docai/internal/loader/local"
)

// App holds the long-lived components of one process.
type App struct {
	Repo       port.ShippingRecordRepository
	Addresser  *contentkey.Addresser
	Extraction service.ExtractionService
	Export     service.ExportService
	Families   int

	backends   map[domain.ModelFamily]port.LLMBackend
	closeStore func() error
}

// New opens the configured store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	addresser, err := contentkey.NewAddresser(cfg.Identity.Strategy)
	if err != nil {
		return nil, err
	}

	loaders, err := loader.Build(&cfg.Loader)
	if err != nil {
		return nil, fmt.Errorf("app.New loaders: %w", err)
	}
	backends, err := extractor.BuildBackends(&cfg.Extractor)
	if err != nil {
		return nil, fmt.Errorf("app.New backends: %w", err)
	}
	engine := extractor.NewEngine(schema.MustNew(), backends, extractor.Options{
		Temperature: cfg.Extractor.Temperature,
		MaxTokens:   cfg.Extractor.MaxTokens,
		Timeout:     cfg.Extractor.Timeout(),
	})

	var storage port.ObjectStorage
	if cfg.S3.Enabled {
		s3Client, err := s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			closeBackends(backends)
			return nil, fmt.Errorf("app.New s3: %w", err)
		}
		storage = s3Client
	}

	repo, closeStore, err := repository.Open(ctx, cfg)
	if err != nil {
		closeBackends(backends)
		return nil, fmt.Errorf("app.New %s store: %w", cfg.Store.Driver, err)
	}

	extraction := service.NewExtractionService(repo, loaders, engine, addresser, cfg.Loader.MaxFileSizeBytes(), storage, service.ArchiveConfig{
		Bucket:        cfg.S3.Bucket,
		KeyPrefix:     cfg.S3.KeyPrefix,
		PresignExpiry: cfg.S3.PresignExpiry,
	})

	return &App{
		Repo:       repo,
		Addresser:  addresser,
		Extraction: extraction,
		Export:     service.NewExportService(repo),
		Families:   len(backends),
		backends:   backends,
		closeStore: closeStore,
	}, nil
}

// Close releases backend clients and the store connection.
func (a *App) Close() {
	closeBackends(a.backends)
	if a.closeStore == nil {
		return
	}
	if err := a.closeStore(); err != nil {
		log.Warn().Err(err).Msg("closing store")
	}
}

// closeBackends closes every backend that holds a connection and returns how
// many were closed.
func closeBackends(backends map[domain.ModelFamily]port.LLMBackend) int {
	closed := 0
	for family, b := range backends {
		c, ok := b.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("family", string(family)).Msg("closing model backend")
		}
		closed++
	}
	return closed
}

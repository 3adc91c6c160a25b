package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"docai/internal/contentkey"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/loader"
	"docai/internal/logger"
	"docai/internal/port"
	s3store "docai/internal/storage/s3"
)

// PipelineState names the stages an upload moves through.
type PipelineState string

const (
	StateKeyComputed PipelineState = "key_computed"
	StateChecked     PipelineState = "checked"
	StateCached      PipelineState = "cached"
	StateLoading     PipelineState = "loading"
	StateExtracting  PipelineState = "extracting"
	StatePersisted   PipelineState = "persisted"
)

// ProcessInput is the DTO for one upload.
type ProcessInput struct {
	Filename string
	Content  []byte
	Config   domain.ProcessingConfig
}

// ProcessResult is the terminal state of a successful pipeline run.
type ProcessResult struct {
	TaskID string
	Record *domain.ShippingRecord
	State  PipelineState
}

// Cached reports whether the record existed before this call.
func (r *ProcessResult) Cached() bool {
	return r.State == StateCached
}

// ArchiveConfig locates archived source documents.
type ArchiveConfig struct {
	Bucket        string
	KeyPrefix     string
	PresignExpiry int64
}

// ParserInfo describes one parser variant.
type ParserInfo struct {
	ID        domain.ParserVariant `json:"id"`
	Available bool                 `json:"available"`
}

// ModelInfo describes one extractor model.
type ModelInfo struct {
	ID        domain.ExtractorModel `json:"id"`
	Family    domain.ModelFamily    `json:"family"`
	Available bool                  `json:"available"`
}

// Catalog lists the processing options and whether each is configured.
type Catalog struct {
	Parsers []ParserInfo `json:"parsers"`
	Models  []ModelInfo  `json:"models"`
}

// ExtractionService defines the upload pipeline and the read side of the record store.
type ExtractionService interface {
	Process(ctx context.Context, input *ProcessInput) (*ProcessResult, error)
	Get(ctx context.Context, taskID string) (*domain.ShippingRecord, error)
	List(ctx context.Context, offset, limit int) ([]domain.ShippingRecord, int, error)
	Catalog() Catalog
}

type extractionService struct {
	repo        port.ShippingRecordRepository
	loaders     *loader.Set
	extractor   extractor.Extractor
	addresser   *contentkey.Addresser
	maxFileSize int64
	storage     port.ObjectStorage
	archive     ArchiveConfig
	log         zerolog.Logger
}

// NewExtractionService creates a new ExtractionService implementation.
// storage may be nil, which disables the source archive.
func NewExtractionService(
	repo port.ShippingRecordRepository,
	loaders *loader.Set,
	ext extractor.Extractor,
	addresser *contentkey.Addresser,
	maxFileSize int64,
	storage port.ObjectStorage,
	archive ArchiveConfig,
) ExtractionService {
	return &extractionService{
		repo:        repo,
		loaders:     loaders,
		extractor:   ext,
		addresser:   addresser,
		maxFileSize: maxFileSize,
		storage:     storage,
		archive:     archive,
		log:         logger.Component("pipeline"),
	}
}

func (s *extractionService) Process(ctx context.Context, input *ProcessInput) (*ProcessResult, error) {
	if len(input.Content) == 0 {
		return nil, domain.ErrEmptyFile
	}
	if s.maxFileSize > 0 && int64(len(input.Content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", domain.ErrFileTooLarge, len(input.Content), s.maxFileSize)
	}
	if err := input.Config.Validate(); err != nil {
		return nil, err
	}
	if err := loader.CheckFormat(input.Filename); err != nil {
		return nil, err
	}

	taskID := s.addresser.Key(input.Config, input.Filename, input.Content)
	log := s.log.With().Str("task_id", taskID).Str("document", input.Filename).Logger()
	log.Debug().Str("state", string(StateKeyComputed)).Msg("content key computed")

	existing, err := s.repo.FindByTaskID(ctx, taskID)
	switch {
	case err == nil:
		log.Info().Str("state", string(StateCached)).Msg("document already processed")
		return &ProcessResult{TaskID: taskID, Record: existing, State: StateCached}, nil
	case !errors.Is(err, domain.ErrRecordNotFound):
		return nil, err
	}
	log.Debug().Str("state", string(StateChecked)).Msg("no stored record")

	docLoader, err := s.loaders.Get(input.Config.ParserType)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("state", string(StateLoading)).Str("parser", string(input.Config.ParserType)).Msg("loading document")
	loaded, err := docLoader.ExtractText(ctx, port.LoadInput{Filename: input.Filename, Content: input.Content})
	if err != nil {
		log.Warn().Err(err).Msg("document loading failed")
		return nil, err
	}

	log.Debug().Str("state", string(StateExtracting)).Str("model", string(input.Config.EntityExtractor)).Int("pages", loaded.Pages).Msg("extracting entities")
	result, err := s.extractor.Extract(ctx, loaded.Text, input.Config.EntityExtractor)
	if err != nil {
		log.Warn().Err(err).Msg("entity extraction failed")
		return nil, err
	}

	record := &domain.ShippingRecord{
		TaskID:        taskID,
		BillOfLading:  *result.BillOfLading,
		ParsedContent: loaded.Text,
		MetaInfo: domain.MetaInfo{
			DocumentName:         input.Filename,
			DocParserModel:       input.Config.ParserType,
			EntityExtractorModel: input.Config.EntityExtractor,
			TotalCost:            result.Usage.TotalCost,
			TotalTokens:          result.Usage.TotalTokens,
		},
	}

	if err := s.repo.Insert(ctx, record); err != nil {
		if !errors.Is(err, domain.ErrUniquenessViolation) {
			return nil, err
		}
		// A concurrent request for the same key won the insert.
		log.Info().Msg("record inserted concurrently, re-reading")
		stored, findErr := s.repo.FindByTaskID(ctx, taskID)
		if findErr != nil {
			return nil, findErr
		}
		return &ProcessResult{TaskID: taskID, Record: stored, State: StateCached}, nil
	}
	log.Info().Str("state", string(StatePersisted)).Int("total_tokens", record.MetaInfo.TotalTokens).
		Float64("total_cost", record.MetaInfo.TotalCost).Msg("record stored")

	s.archiveSource(ctx, taskID, input)
	return &ProcessResult{TaskID: taskID, Record: record, State: StatePersisted}, nil
}

// archiveSource uploads the original bytes. Failures are logged and never
// fail the request.
func (s *extractionService) archiveSource(ctx context.Context, taskID string, input *ProcessInput) {
	if s.storage == nil {
		return
	}
	key := s3store.ObjectKey(s.archive.KeyPrefix, taskID, input.Filename)
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.archive.Bucket,
		Key:         key,
		Body:        bytes.NewReader(input.Content),
		ContentType: "application/pdf",
		Size:        int64(len(input.Content)),
	})
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Str("key", key).Msg("archiving source document failed")
	}
}

func (s *extractionService) Get(ctx context.Context, taskID string) (*domain.ShippingRecord, error) {
	if len(taskID) != contentkey.Size {
		return nil, domain.ErrRecordNotFound
	}
	rec, err := s.repo.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if s.storage != nil {
		key := s3store.ObjectKey(s.archive.KeyPrefix, taskID, rec.MetaInfo.DocumentName)
		url, err := s.storage.GetPresignedURL(ctx, s.archive.Bucket, key, s.archive.PresignExpiry)
		if err != nil {
			s.log.Warn().Err(err).Str("task_id", taskID).Msg("presigning source document failed")
		} else {
			rec.SourceURL = url
		}
	}
	return rec, nil
}

func (s *extractionService) List(ctx context.Context, offset, limit int) ([]domain.ShippingRecord, int, error) {
	return s.repo.List(ctx, offset, limit)
}

func (s *extractionService) Catalog() Catalog {
	var c Catalog
	variants := make([]domain.ParserVariant, 0, len(domain.AllowedParserVariants))
	for v := range domain.AllowedParserVariants {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })
	for _, v := range variants {
		c.Parsers = append(c.Parsers, ParserInfo{ID: v, Available: s.loaders.Available(v)})
	}

	models := make([]domain.ExtractorModel, 0, len(domain.SupportedModels))
	for m := range domain.SupportedModels {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })
	for _, m := range models {
		c.Models = append(c.Models, ModelInfo{
			ID:        m,
			Family:    domain.SupportedModels[m],
			Available: s.extractor.Available(m),
		})
	}
	return c
}

package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docai/internal/contentkey"
	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/loader"
	"docai/internal/port"
	"docai/internal/service"
	"docai/mocks"
)

const maxSize = 1 << 20

func sampleBOL() *domain.BillOfLading {
	return &domain.BillOfLading{
		Shipper:         domain.ContactInfo{Name: "Acme Exports", Address: "1 Dock Rd", City: "Shanghai"},
		Consignee:       domain.ContactInfo{Name: "Globex", Address: "9 Pier St", City: "Rotterdam"},
		Vessel:          "MSC Aurora",
		VoyageNumber:    "V-102",
		PortOfLoading:   "Shanghai",
		PortOfDischarge: "Rotterdam",
		PlaceOfDelivery: "Rotterdam",
		Packages:        []domain.PackageDetails{{Description: "Pallets", Quantity: 10, GrossWeight: "2000 kg"}},
		IssueDate:       "2024-05-01",
		BLNumber:        "BL-123",
	}
}

func defaultConfig() domain.ProcessingConfig {
	return domain.ProcessingConfig{ParserType: domain.ParserFastLocal, EntityExtractor: domain.ModelGPT4oMini}
}

type fixture struct {
	repo    *mocks.MockShippingRecordRepo
	loader  *mocks.MockDocumentLoader
	ext     *mocks.MockExtractor
	storage *mocks.MockObjectStorage
}

func newFixture() *fixture {
	return &fixture{
		repo:    new(mocks.MockShippingRecordRepo),
		loader:  &mocks.MockDocumentLoader{VariantValue: domain.ParserFastLocal},
		ext:     new(mocks.MockExtractor),
		storage: new(mocks.MockObjectStorage),
	}
}

func (f *fixture) service(t *testing.T, withStorage bool) service.ExtractionService {
	t.Helper()
	addr, err := contentkey.NewAddresser("")
	require.NoError(t, err)
	var storage port.ObjectStorage
	if withStorage {
		storage = f.storage
	}
	return service.NewExtractionService(f.repo, loader.NewSet(f.loader), f.ext, addr, maxSize, storage,
		service.ArchiveConfig{Bucket: "docs", KeyPrefix: "documents", PresignExpiry: 600})
}

func TestProcess_MissRunsFullPipeline(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	cfg := defaultConfig()
	taskID := contentkey.ComputeKey(cfg, "bol_123.pdf")

	f.repo.On("FindByTaskID", mock.Anything, taskID).Return(nil, domain.ErrRecordNotFound).Once()
	f.loader.On("ExtractText", mock.Anything, port.LoadInput{Filename: "bol_123.pdf", Content: []byte("%PDF")}).
		Return(&port.LoadOutput{Text: "page one\n\npage two", Pages: 2}, nil)
	f.ext.On("Extract", mock.Anything, "page one\n\npage two", domain.ModelGPT4oMini).
		Return(&extractor.Result{BillOfLading: sampleBOL(), Usage: domain.ExtractionUsage{TotalTokens: 150, TotalCost: 0.002}}, nil)
	f.repo.On("Insert", mock.Anything, mock.AnythingOfType("*domain.ShippingRecord")).Return(nil)

	res, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "bol_123.pdf", Content: []byte("%PDF"), Config: cfg})
	require.NoError(t, err)

	assert.Equal(t, taskID, res.TaskID)
	assert.Equal(t, service.StatePersisted, res.State)
	assert.False(t, res.Cached())
	assert.Equal(t, "BL-123", res.Record.BLNumber)
	assert.Equal(t, "page one\n\npage two", res.Record.ParsedContent)
	assert.Equal(t, domain.MetaInfo{
		DocumentName:         "bol_123.pdf",
		DocParserModel:       domain.ParserFastLocal,
		EntityExtractorModel: domain.ModelGPT4oMini,
		TotalCost:            0.002,
		TotalTokens:          150,
	}, res.Record.MetaInfo)
	f.repo.AssertExpectations(t)
}

func TestProcess_HitSkipsLoaderAndExtractor(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	cfg := defaultConfig()
	taskID := contentkey.ComputeKey(cfg, "bol_123.pdf")
	stored := &domain.ShippingRecord{TaskID: taskID, BillOfLading: *sampleBOL(), ParsedContent: "stored"}

	f.repo.On("FindByTaskID", mock.Anything, taskID).Return(stored, nil)

	res, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "bol_123.pdf", Content: []byte("%PDF"), Config: cfg})
	require.NoError(t, err)

	assert.True(t, res.Cached())
	assert.Same(t, stored, res.Record)
	f.loader.AssertNotCalled(t, "ExtractText", mock.Anything, mock.Anything)
	f.ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestProcess_RejectsBeforeLookup(t *testing.T) {
	tests := []struct {
		name    string
		input   service.ProcessInput
		wantErr error
	}{
		{name: "empty", input: service.ProcessInput{Filename: "a.pdf", Config: defaultConfig()}, wantErr: domain.ErrEmptyFile},
		{name: "too large", input: service.ProcessInput{Filename: "a.pdf", Content: make([]byte, maxSize+1), Config: defaultConfig()}, wantErr: domain.ErrFileTooLarge},
		{name: "not a pdf", input: service.ProcessInput{Filename: "a.docx", Content: []byte("x"), Config: defaultConfig()}, wantErr: domain.ErrUnsupportedFormat},
		{name: "unknown model", input: service.ProcessInput{Filename: "a.pdf", Content: []byte("x"),
			Config: domain.ProcessingConfig{ParserType: domain.ParserFastLocal, EntityExtractor: "gpt-2"}}, wantErr: domain.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			svc := f.service(t, false)
			input := tt.input

			_, err := svc.Process(context.Background(), &input)
			assert.ErrorIs(t, err, tt.wantErr)
			f.repo.AssertNotCalled(t, "FindByTaskID", mock.Anything, mock.Anything)
			f.repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		})
	}
}

func TestProcess_LoaderFailureStoresNothing(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	backendErr := &domain.ExtractionBackendError{Backend: "llama_parse", Err: errors.New("502")}

	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).Return(nil, domain.ErrRecordNotFound)
	f.loader.On("ExtractText", mock.Anything, mock.Anything).Return(nil, backendErr)

	_, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "a.pdf", Content: []byte("%PDF"), Config: defaultConfig()})
	assert.ErrorIs(t, err, domain.ErrExtractionBackend)
	f.ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestProcess_ParseFailureStoresNothing(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)

	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).Return(nil, domain.ErrRecordNotFound)
	f.loader.On("ExtractText", mock.Anything, mock.Anything).Return(&port.LoadOutput{Text: "text", Pages: 1}, nil)
	f.ext.On("Extract", mock.Anything, "text", domain.ModelGPT4oMini).
		Return(nil, &domain.ExtractionParseError{Model: domain.ModelGPT4oMini, Reason: "output failed validation: vessel is required"})

	_, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "a.pdf", Content: []byte("%PDF"), Config: defaultConfig()})
	assert.ErrorIs(t, err, domain.ErrExtractionParse)
	f.repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestProcess_UnavailableParser(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	cfg := domain.ProcessingConfig{ParserType: domain.ParserRemoteLayoutAware, EntityExtractor: domain.ModelGPT4o}

	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).Return(nil, domain.ErrRecordNotFound)

	_, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "a.pdf", Content: []byte("%PDF"), Config: cfg})
	assert.ErrorIs(t, err, domain.ErrParserUnavailable)
}

func TestProcess_StoreUnavailableOnLookup(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).
		Return(nil, &domain.StoreUnavailableError{Op: "find", Err: errors.New("connection refused")})

	_, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "a.pdf", Content: []byte("%PDF"), Config: defaultConfig()})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	f.loader.AssertNotCalled(t, "ExtractText", mock.Anything, mock.Anything)
}

func TestProcess_UniquenessViolationRereads(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	winner := &domain.ShippingRecord{TaskID: "winner", ParsedContent: "first"}

	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).Return(nil, domain.ErrRecordNotFound).Once()
	f.loader.On("ExtractText", mock.Anything, mock.Anything).Return(&port.LoadOutput{Text: "text", Pages: 1}, nil)
	f.ext.On("Extract", mock.Anything, "text", domain.ModelGPT4oMini).
		Return(&extractor.Result{BillOfLading: sampleBOL()}, nil)
	f.repo.On("Insert", mock.Anything, mock.Anything).Return(domain.ErrUniquenessViolation)
	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).Return(winner, nil).Once()

	res, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "a.pdf", Content: []byte("%PDF"), Config: defaultConfig()})
	require.NoError(t, err)
	assert.Same(t, winner, res.Record)
	assert.True(t, res.Cached())
}

func TestProcess_ArchivesSourceAfterInsert(t *testing.T) {
	f := newFixture()
	svc := f.service(t, true)
	taskID := contentkey.ComputeKey(defaultConfig(), "bol.pdf")

	f.repo.On("FindByTaskID", mock.Anything, mock.Anything).Return(nil, domain.ErrRecordNotFound)
	f.loader.On("ExtractText", mock.Anything, mock.Anything).Return(&port.LoadOutput{Text: "text", Pages: 1}, nil)
	f.ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(&extractor.Result{BillOfLading: sampleBOL()}, nil)
	f.repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "docs" && in.Key == "documents/"+taskID+"/bol.pdf" && in.Size == 4
	})).Return(nil, errors.New("s3 down"))

	res, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "bol.pdf", Content: []byte("%PDF"), Config: defaultConfig()})
	require.NoError(t, err, "archive failures do not fail the upload")
	assert.Equal(t, service.StatePersisted, res.State)
	f.storage.AssertExpectations(t)
}

// memoryRepo enforces key uniqueness like the real stores do.
type memoryRepo struct {
	mu      sync.Mutex
	records map[string]domain.ShippingRecord
}

func (r *memoryRepo) FindByTaskID(_ context.Context, taskID string) (*domain.ShippingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[taskID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *memoryRepo) Insert(_ context.Context, rec *domain.ShippingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.TaskID]; ok {
		return domain.ErrUniquenessViolation
	}
	r.records[rec.TaskID] = *rec
	return nil
}

func (r *memoryRepo) List(context.Context, int, int) ([]domain.ShippingRecord, int, error) {
	return nil, 0, nil
}

func (r *memoryRepo) ListAfter(_ context.Context, after *port.RecordCursor, limit int) ([]domain.ShippingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.ShippingRecord, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].TaskID > all[j].TaskID
	})
	page := []domain.ShippingRecord{}
	for _, rec := range all {
		if after != nil && !olderThan(rec, after) {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, rec)
	}
	return page, nil
}

func olderThan(rec domain.ShippingRecord, c *port.RecordCursor) bool {
	if rec.CreatedAt.Equal(c.CreatedAt) {
		return rec.TaskID < c.TaskID
	}
	return rec.CreatedAt.Before(c.CreatedAt)
}

func (r *memoryRepo) Ping(context.Context) error { return nil }

func TestProcess_ConcurrentDuplicatesConverge(t *testing.T) {
	repo := &memoryRepo{records: map[string]domain.ShippingRecord{}}
	docLoader := &mocks.MockDocumentLoader{VariantValue: domain.ParserFastLocal}
	ext := new(mocks.MockExtractor)
	addr, err := contentkey.NewAddresser("")
	require.NoError(t, err)

	release := make(chan struct{})
	docLoader.On("ExtractText", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(&port.LoadOutput{Text: "text", Pages: 1}, nil)
	ext.On("Extract", mock.Anything, "text", domain.ModelGPT4oMini).
		Return(&extractor.Result{BillOfLading: sampleBOL()}, nil)

	svc := service.NewExtractionService(repo, loader.NewSet(docLoader), ext, addr, maxSize, nil, service.ArchiveConfig{})

	const workers = 8
	var wg sync.WaitGroup
	var persisted atomic.Int32
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Process(context.Background(), &service.ProcessInput{Filename: "same.pdf", Content: []byte("%PDF"), Config: defaultConfig()})
			if err != nil {
				errs <- err
				return
			}
			if res.State == service.StatePersisted {
				persisted.Add(1)
			}
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Len(t, repo.records, 1)
	assert.Equal(t, int32(1), persisted.Load())
}

func TestGet_AddsPresignedURL(t *testing.T) {
	f := newFixture()
	svc := f.service(t, true)
	taskID := contentkey.ComputeKey(defaultConfig(), "bol.pdf")
	rec := &domain.ShippingRecord{TaskID: taskID, MetaInfo: domain.MetaInfo{DocumentName: "bol.pdf"}}

	f.repo.On("FindByTaskID", mock.Anything, taskID).Return(rec, nil)
	f.storage.On("GetPresignedURL", mock.Anything, "docs", "documents/"+taskID+"/bol.pdf", int64(600)).
		Return("https://s3.example/bol.pdf?sig", nil)

	got, err := svc.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/bol.pdf?sig", got.SourceURL)
}

func TestGet_MalformedTaskID(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)

	_, err := svc.Get(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	f.repo.AssertNotCalled(t, "FindByTaskID", mock.Anything, mock.Anything)
}

func TestCatalog(t *testing.T) {
	f := newFixture()
	svc := f.service(t, false)
	f.ext.On("Available", domain.ModelGPT4oMini).Return(true)
	f.ext.On("Available", mock.Anything).Return(false)

	c := svc.Catalog()

	require.Len(t, c.Parsers, 2)
	assert.Equal(t, service.ParserInfo{ID: domain.ParserRemoteLayoutAware, Available: false}, c.Parsers[0])
	assert.Equal(t, service.ParserInfo{ID: domain.ParserFastLocal, Available: true}, c.Parsers[1])

	require.Len(t, c.Models, len(domain.SupportedModels))
	for _, m := range c.Models {
		assert.Equal(t, m.ID == domain.ModelGPT4oMini, m.Available, m.ID)
	}
}

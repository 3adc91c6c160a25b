package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docai/internal/domain"
	"docai/internal/export"
	"docai/internal/service"
)

// AlreadyPresentMessage is returned as extracted_info when the upload was processed before.
const AlreadyPresentMessage = "Document already present"

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	TaskID        string      `json:"task_id"`
	ExtractedInfo interface{} `json:"extracted_info"`
}

// DocumentHandler handles upload and shipping record endpoints.
type DocumentHandler struct {
	extractionService service.ExtractionService
	exportService     service.ExportService
	maxFileSize       int64
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(extractionService service.ExtractionService, exportService service.ExportService, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		extractionService: extractionService,
		exportService:     exportService,
		maxFileSize:       maxFileSize,
	}
}

// Upload handles POST /documents/upload
// @Summary Upload a bill of lading
// @Description Extract a bill of lading from a PDF. Re-uploads of a known document return the stored record id.
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF document"
// @Param parser_type query string false "pymupdf or llama_parse"
// @Param entity_extractor query string false "Model id, e.g. gpt-4o-mini"
// @Success 201 {object} UploadResponse
// @Router /documents/upload [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		HandleError(c, fmt.Errorf("%w: %d bytes (limit %d)", domain.ErrFileTooLarge, header.Size, h.maxFileSize))
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "UNREADABLE_FILE", "uploaded file could not be read")
		return
	}

	cfg, err := domain.NewProcessingConfig(formOrQuery(c, "parser_type"), formOrQuery(c, "entity_extractor"))
	if err != nil {
		HandleError(c, err)
		return
	}

	result, err := h.extractionService.Process(c.Request.Context(), &service.ProcessInput{
		Filename: header.Filename,
		Content:  content,
		Config:   cfg,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	var info interface{} = result.Record
	if result.Cached() {
		info = AlreadyPresentMessage
	}
	c.JSON(http.StatusCreated, UploadResponse{TaskID: result.TaskID, ExtractedInfo: info})
}

// formOrQuery reads a processing option from the multipart form, falling back to the query string.
func formOrQuery(c *gin.Context, key string) string {
	if v := strings.TrimSpace(c.PostForm(key)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query(key))
}

// Get handles GET /api/v1/documents/:task_id
func (h *DocumentHandler) Get(c *gin.Context) {
	rec, err := h.extractionService.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, rec)
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)
	records, total, err := h.extractionService.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, records, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// Export handles GET /api/v1/documents/export?format=csv|xlsx
func (h *DocumentHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", export.FormatCSV))
	if format != export.FormatCSV && format != export.FormatXLSX {
		RespondError(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be csv or xlsx")
		return
	}

	// Buffer so a store failure can still be reported as an error response.
	var buf bytes.Buffer
	if _, err := h.exportService.Export(c.Request.Context(), format, &buf); err != nil {
		HandleError(c, err)
		return
	}

	filename := export.BuildFilename("shipping_records", format, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
}

// Models handles GET /api/v1/models
func (h *DocumentHandler) Models(c *gin.Context) {
	RespondOK(c, h.extractionService.Catalog())
}

// parsePagination extracts offset and limit from query params with defaults.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

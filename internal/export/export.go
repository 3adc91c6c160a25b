// Package export writes shipping records as CSV or XLSX spreadsheets.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"docai/internal/domain"
)

// Supported export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// columns defines the header row (18 columns).
var columns = []string{
	"Task ID",
	"Document Name",
	"BL Number",
	"Shipper",
	"Consignee",
	"Vessel",
	"Voyage Number",
	"Port of Loading",
	"Port of Discharge",
	"Place of Delivery",
	"Issue Date",
	"Package Count",
	"Parser",
	"Model",
	"Total Tokens",
	"Total Cost",
	"Created At",
	"Gross Weights",
}

// Columns returns a copy of the header row.
func Columns() []string {
	return append([]string(nil), columns...)
}

// Writer streams records into a spreadsheet. Close must be called to flush output.
type Writer interface {
	WriteHeader() error
	WriteRecords(records []domain.ShippingRecord) error
	Close() error
}

// NewWriter returns the writer for a format.
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return NewCSVWriter(w), nil
	case FormatXLSX:
		return NewXLSXWriter(w)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	if strings.EqualFold(format, FormatXLSX) {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// recordToRow converts a record to one row, aligned with columns.
func recordToRow(rec *domain.ShippingRecord) []string {
	weights := make([]string, 0, len(rec.Packages))
	for _, p := range rec.Packages {
		weights = append(weights, p.GrossWeight)
	}
	return []string{
		rec.TaskID,
		rec.MetaInfo.DocumentName,
		rec.BLNumber,
		rec.Shipper.Name,
		rec.Consignee.Name,
		rec.Vessel,
		rec.VoyageNumber,
		rec.PortOfLoading,
		rec.PortOfDischarge,
		rec.PlaceOfDelivery,
		rec.IssueDate,
		strconv.Itoa(len(rec.Packages)),
		string(rec.MetaInfo.DocParserModel),
		string(rec.MetaInfo.EntityExtractorModel),
		strconv.Itoa(rec.MetaInfo.TotalTokens),
		strconv.FormatFloat(rec.MetaInfo.TotalCost, 'f', 6, 64),
		formatTime(rec.CreatedAt),
		strings.Join(weights, "; "),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {sanitized_name}_{YYYY-MM-DD}.{format}.
func BuildFilename(name, format string, now time.Time) string {
	if format == "" {
		format = FormatCSV
	}
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(name), now.Format("2006-01-02"), strings.ToLower(format))
}

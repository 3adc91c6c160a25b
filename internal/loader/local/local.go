// Package local implements the in-process PDF text loader.
package local

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/loader"
	"docai/internal/port"
)

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n\n"

func init() {
	loader.Register(domain.ParserFastLocal, func(_ *config.LoaderConfig) (port.DocumentLoader, error) {
		return New(), nil
	})
}

// Loader extracts text page by page without leaving the process.
type Loader struct {
	conf *model.Configuration
}

// New creates a Loader with relaxed pdfcpu validation.
func New() *Loader {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Loader{conf: conf}
}

func (l *Loader) Variant() domain.ParserVariant {
	return domain.ParserFastLocal
}

func (l *Loader) ExtractText(ctx context.Context, input port.LoadInput) (*port.LoadOutput, error) {
	if err := loader.CheckFormat(input.Filename); err != nil {
		return nil, err
	}
	if len(input.Content) == 0 {
		return nil, domain.ErrEmptyFile
	}

	if err := api.Validate(bytes.NewReader(input.Content), l.conf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptDocument, input.Filename, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(input.Content), int64(len(input.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptDocument, input.Filename, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(reader, i)
		if err != nil {
			log.Warn().Str("component", "loader.local").Str("document", input.Filename).
				Int("page", i).Err(err).Msg("page text extraction failed")
		}
		pages = append(pages, strings.TrimRight(loader.CleanText(text), "\n"))
	}

	return &port.LoadOutput{
		Text:  strings.Join(pages, PageSeparator),
		Pages: numPages,
	}, nil
}

// pageText returns "" for pages without a content stream.
func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed page content: %v", rec)
		}
	}()
	page := r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

package port

import (
	"context"

	"docai/internal/domain"
)

// LoadInput carries an uploaded document into a loader.
type LoadInput struct {
	Filename string
	Content  []byte
}

// LoadOutput is the text extracted from a document.
type LoadOutput struct {
	Text  string
	Pages int
}

// DocumentLoader extracts plain or markdown text from a document.
type DocumentLoader interface {
	Variant() domain.ParserVariant
	ExtractText(ctx context.Context, input LoadInput) (*LoadOutput, error)
}

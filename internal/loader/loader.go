// Package loader selects a DocumentLoader by parser variant. Variants
// register themselves from init functions in their own packages.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/port"
)

// SupportedExtension is the only accepted upload format.
const SupportedExtension = ".pdf"

// Factory builds a loader from configuration. It returns an error wrapping
// domain.ErrParserUnavailable when required settings are missing.
type Factory func(cfg *config.LoaderConfig) (port.DocumentLoader, error)

var (
	mu        sync.RWMutex
	factories = map[domain.ParserVariant]Factory{}
)

// Register adds a factory for a parser variant, replacing any previous one.
func Register(variant domain.ParserVariant, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[variant] = factory
}

// New builds a single loader for a variant.
func New(variant domain.ParserVariant, cfg *config.LoaderConfig) (port.DocumentLoader, error) {
	mu.RLock()
	factory, ok := factories[variant]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no loader registered for %s", domain.ErrParserUnavailable, variant)
	}
	return factory(cfg)
}

// Registered lists the variants that have a factory.
func Registered() []domain.ParserVariant {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]domain.ParserVariant, 0, len(factories))
	for v := range factories {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set dispatches to the loader for a variant.
type Set struct {
	loaders map[domain.ParserVariant]port.DocumentLoader
}

// NewSet wraps already constructed loaders.
func NewSet(loaders ...port.DocumentLoader) *Set {
	s := &Set{loaders: make(map[domain.ParserVariant]port.DocumentLoader, len(loaders))}
	for _, l := range loaders {
		s.loaders[l.Variant()] = l
	}
	return s
}

// Build constructs every registered variant. Variants that are not configured are skipped.
func Build(cfg *config.LoaderConfig) (*Set, error) {
	var loaders []port.DocumentLoader
	for _, variant := range Registered() {
		l, err := New(variant, cfg)
		if errors.Is(err, domain.ErrParserUnavailable) {
			log.Warn().Str("component", "loader").Str("parser", string(variant)).Err(err).Msg("parser variant disabled")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loader.Build %s: %w", variant, err)
		}
		loaders = append(loaders, l)
	}
	return NewSet(loaders...), nil
}

// Get returns the loader for a variant.
func (s *Set) Get(variant domain.ParserVariant) (port.DocumentLoader, error) {
	l, ok := s.loaders[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrParserUnavailable, variant)
	}
	return l, nil
}

// Available reports whether a variant can be used.
func (s *Set) Available(variant domain.ParserVariant) bool {
	_, ok := s.loaders[variant]
	return ok
}

// CleanText makes extracted text safe to store: invalid UTF-8 sequences are
// replaced and NUL characters are dropped.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// CheckFormat rejects filenames whose extension is not .pdf.
func CheckFormat(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != SupportedExtension {
		actual := ext
		if actual == "" {
			actual = "(none)"
		}
		return &domain.UnsupportedFormatError{Filename: filename, Expected: SupportedExtension, Actual: actual}
	}
	return nil
}

package extractor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/port"
)

// BackendFactory creates an LLMBackend for a model family. It returns an
// error wrapping domain.ErrModelUnavailable when credentials are missing.
type BackendFactory func(cfg *config.ExtractorConfig) (port.LLMBackend, error)

// registry of backend factories, populated by init() in each backend package
// or explicitly via RegisterBackend.
var (
	registryMu sync.RWMutex
	backends   = map[domain.ModelFamily]BackendFactory{}
)

// RegisterBackend registers a backend factory for a model family.
func RegisterBackend(family domain.ModelFamily, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[family] = factory
}

// NewBackend creates the backend for one family using its registered factory.
func NewBackend(family domain.ModelFamily, cfg *config.ExtractorConfig) (port.LLMBackend, error) {
	registryMu.RLock()
	factory, ok := backends[family]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no backend registered for %s", domain.ErrModelUnavailable, family)
	}
	return factory(cfg)
}

// BuildBackends constructs every registered family. Families without
// credentials are skipped and their models report as unavailable.
func BuildBackends(cfg *config.ExtractorConfig) (map[domain.ModelFamily]port.LLMBackend, error) {
	registryMu.RLock()
	families := make([]domain.ModelFamily, 0, len(backends))
	for f := range backends {
		families = append(families, f)
	}
	registryMu.RUnlock()
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

	out := make(map[domain.ModelFamily]port.LLMBackend, len(families))
	for _, family := range families {
		b, err := NewBackend(family, cfg)
		if errors.Is(err, domain.ErrModelUnavailable) {
			log.Warn().Str("component", "extractor").Str("family", string(family)).Err(err).Msg("model family disabled")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("extractor.BuildBackends %s: %w", family, err)
		}
		out[family] = b
	}
	return out, nil
}

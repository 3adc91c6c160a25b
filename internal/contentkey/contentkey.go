// Package contentkey derives the identifier used as both cache key and
// primary key for shipping records.
package contentkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"docai/internal/config"
	"docai/internal/domain"
)

// Size is the length of a key in hex characters.
const Size = sha256.Size * 2

// ComputeKey hashes the canonical processing configuration followed by the filename.
func ComputeKey(cfg domain.ProcessingConfig, filename string) string {
	h := sha256.New()
	h.Write(cfg.Canonical())
	h.Write([]byte(filename))
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeContentKey hashes the canonical configuration followed by the digest of the file bytes.
func ComputeContentKey(cfg domain.ProcessingConfig, content []byte) string {
	sum := sha256.Sum256(content)
	h := sha256.New()
	h.Write(cfg.Canonical())
	h.Write([]byte(hex.EncodeToString(sum[:])))
	return hex.EncodeToString(h.Sum(nil))
}

// Addresser computes keys with a fixed strategy.
type Addresser struct {
	strategy string
}

// NewAddresser returns an Addresser for one of the config.Identity* strategies.
func NewAddresser(strategy string) (*Addresser, error) {
	switch strategy {
	case config.IdentityFilename, config.IdentityContent:
		return &Addresser{strategy: strategy}, nil
	case "":
		return &Addresser{strategy: config.IdentityFilename}, nil
	default:
		return nil, fmt.Errorf("contentkey: unknown strategy %q", strategy)
	}
}

// Strategy returns the configured strategy name.
func (a *Addresser) Strategy() string {
	return a.strategy
}

// Key returns the content key for an upload.
func (a *Addresser) Key(cfg domain.ProcessingConfig, filename string, content []byte) string {
	if a.strategy == config.IdentityContent {
		return ComputeContentKey(cfg, content)
	}
	return ComputeKey(cfg, filename)
}

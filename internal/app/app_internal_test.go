package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"docai/internal/domain"
	"docai/internal/port"
)

type plainBackend struct{}

func (plainBackend) Name() string { return "plain" }

func (plainBackend) Complete(context.Context, port.CompletionRequest) (*port.CompletionResponse, error) {
	return &port.CompletionResponse{}, nil
}

type connBackend struct {
	plainBackend
	closed int
	err    error
}

func (c *connBackend) Close() error {
	c.closed++
	return c.err
}

func TestApp_CloseReleasesBackendsAndStore(t *testing.T) {
	gemini := &connBackend{}
	storeClosed := false
	a := &App{
		backends: map[domain.ModelFamily]port.LLMBackend{
			domain.FamilyGemini: gemini,
			domain.FamilyOpenAI: plainBackend{},
		},
		closeStore: func() error {
			storeClosed = true
			return nil
		},
	}

	a.Close()

	assert.Equal(t, 1, gemini.closed)
	assert.True(t, storeClosed)
}

func TestCloseBackends_ContinuesPastFailures(t *testing.T) {
	failing := &connBackend{err: errors.New("grpc: already closed")}
	ok := &connBackend{}

	n := closeBackends(map[domain.ModelFamily]port.LLMBackend{
		domain.FamilyGemini:    failing,
		domain.FamilyAnthropic: ok,
		domain.FamilyGroq:      plainBackend{},
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, failing.closed)
	assert.Equal(t, 1, ok.closed)
}

func TestApp_CloseWithoutStore(t *testing.T) {
	assert.NotPanics(t, func() { (&App{}).Close() })
}

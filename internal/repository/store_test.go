package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docai/internal/config"
	"docai/internal/repository"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := repository.Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "mongo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

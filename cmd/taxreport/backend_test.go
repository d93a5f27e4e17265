package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-tax-lab/internal/config"
	chstore "chain-tax-lab/internal/storage/clickhouse"
	"chain-tax-lab/internal/storage/memory"
)

func TestOpenBackend_Memory(t *testing.T) {
	b, err := openBackend(context.Background(), &config.Config{Storage: config.StorageConfig{Backend: config.BackendMemory}})
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &memory.PriceQuoteStore{}, b.Quotes)
	assert.IsType(t, &memory.LotStore{}, b.NewLotStore("job-1"))
	assert.Nil(t, b.Facts)
}

func TestBackend_AttachClickHouse(t *testing.T) {
	b, err := openBackend(context.Background(), &config.Config{Storage: config.StorageConfig{Backend: config.BackendMemory}})
	require.NoError(t, err)

	b.attachClickHouse(&chstore.Conn{})

	assert.IsType(t, &chstore.PriceQuoteStore{}, b.Quotes)
	assert.IsType(t, &chstore.EventFactStore{}, b.Facts)
	assert.IsType(t, &memory.EventStore{}, b.Events, "events stay on the primary backend")
}

package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache", "extraction_cache.db"), discardLogger())
	require.NoError(t, err)
	defer c.Close()

	key := "abc123|openai:gpt-4o-mini:invoice-v1"
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, `{"sender":"Acme"}`))
	require.NoError(t, c.Put(ctx, key, `{"sender":"Acme Corp"}`))

	raw, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"sender":"Acme Corp"}`, raw)

	_, ok, err = c.Get(ctx, "abc123|ollama:llama3:invoice-v1")
	require.NoError(t, err)
	assert.False(t, ok, "a different model does not share cached output")

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) *ResponseCache {
	t.Helper()
	cfg := InMemoryStoreConfig()
	cfg.Logger = quietLogger()
	store, err := OpenStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewResponseCache(store, 0, quietLogger())
}

func TestResponseCache_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("gemini-1.5-flash", false, "prompt")

	_, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, key, "gemini-1.5-flash", "```js\nok\n```"))

	got, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "```js\nok\n```", got)
}

func TestResponseCache_EmptyResponseNotStored(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "k", "m", ""))
	_, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResponseCache_CanceledContext(t *testing.T) {
	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Load(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Save(ctx, "k", "m", "v"))
}

func TestKey_DistinguishesInputs(t *testing.T) {
	base := Key("m", false, "p")
	assert.Equal(t, base, Key("m", false, "p"))
	assert.NotEqual(t, base, Key("m2", false, "p"))
	assert.NotEqual(t, base, Key("m", true, "p"))
	assert.NotEqual(t, base, Key("m", false, "p2"))
	assert.Len(t, base, 64)
}

func TestOpenStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	ctx := context.Background()

	cfg := DefaultStoreConfig(dir)
	cfg.Logger = quietLogger()
	store, err := OpenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, NewResponseCache(store, 0, quietLogger()).Save(ctx, "k", "m", "v"))
	require.NoError(t, store.Close())

	store, err = OpenStore(cfg)
	require.NoError(t, err)
	defer store.Close()
	got, ok, err := NewResponseCache(store, 0, quietLogger()).Load(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestOpenStore_RequiresPath(t *testing.T) {
	_, err := OpenStore(StoreConfig{})
	assert.Error(t, err)
}

func TestResponseCache_ListAndClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "b-key", "gemini-1.5-pro", "second"))
	require.NoError(t, c.Save(ctx, "a-key", "gemini-1.5-flash", "first"))

	infos, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a-key", infos[0].Key)
	assert.Equal(t, "gemini-1.5-flash", infos[0].Model)
	assert.NoError(t, infos[0].DecodeErr)
	assert.False(t, infos[0].StoredAt.IsZero())
	assert.True(t, infos[0].ExpiresAt.After(time.Now()))
	assert.Positive(t, infos[0].Size)
	assert.Equal(t, "b-key", infos[1].Key)

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	infos, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
	_, ok, err := c.Load(ctx, "a-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

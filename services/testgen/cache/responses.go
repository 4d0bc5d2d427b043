// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache stores model responses so unchanged prompts are not sent
// to the model again.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is how long a cached response stays valid.
const DefaultTTL = 7 * 24 * time.Hour

const responseKeyPrefix = "testgen/resp/v1/"

var errCacheMiss = errors.New("cache miss")

// Entry is one cached model response.
type Entry struct {
	Model    string
	Response string
	StoredAt time.Time
}

// ResponseCache maps (model, profile, prompt) to raw model output.
//
// Load returns ("", false, nil) on a miss. Errors are storage failures;
// callers log them and continue without the cache.
type ResponseCache struct {
	store  *Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache wraps an open store. ttl <= 0 selects DefaultTTL.
func NewResponseCache(store *Store, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if store == nil {
		panic("NewResponseCache: store must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{store: store, ttl: ttl, logger: logger}
}

// Key derives the cache key for a request.
func Key(model string, strict bool, prompt string) string {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\nstrict=%t\n", model, strict)
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// Load returns the cached response for key.
func (c *ResponseCache) Load(ctx context.Context, key string) (string, bool, error) {
	var raw []byte
	err := c.store.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(responseKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})
	if errors.Is(err, errCacheMiss) {
		c.logger.Debug("response cache: miss", slog.String("key", shortKey(key)))
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("response cache load: %w", err)
	}

	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry); err != nil {
		return "", false, fmt.Errorf("response cache decode: %w", err)
	}
	c.logger.Debug("response cache: hit",
		slog.String("key", shortKey(key)),
		slog.String("model", entry.Model))
	return entry.Response, true, nil
}

// Save stores response under key with the cache TTL. Empty responses are
// not stored.
func (c *ResponseCache) Save(ctx context.Context, key, model, response string) error {
	if response == "" {
		return nil
	}
	var buf bytes.Buffer
	entry := Entry{Model: model, Response: response, StoredAt: time.Now().UTC()}
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("response cache encode: %w", err)
	}

	err := c.store.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(responseKey(key), buf.Bytes()).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("response cache save: %w", err)
	}
	c.logger.Debug("response cache: saved",
		slog.String("key", shortKey(key)),
		slog.Duration("ttl", c.ttl))
	return nil
}

func responseKey(key string) []byte {
	return []byte(responseKeyPrefix + key)
}

func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}

// EntryInfo describes one stored response for inspection.
type EntryInfo struct {
	Key       string
	Model     string
	StoredAt  time.Time
	ExpiresAt time.Time
	Size      int
	DecodeErr error
}

// List returns every stored response, in key order. Entries that fail to
// decode are returned with DecodeErr set.
func (c *ResponseCache) List(ctx context.Context) ([]EntryInfo, error) {
	var infos []EntryInfo
	err := c.store.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(responseKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			info := EntryInfo{Key: string(bytes.TrimPrefix(item.Key(), prefix))}
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				info.ExpiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				info.DecodeErr = fmt.Errorf("copy value: %w", err)
				infos = append(infos, info)
				continue
			}
			info.Size = len(raw)

			var entry Entry
			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry); err != nil {
				info.DecodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				info.Model = entry.Model
				info.StoredAt = entry.StoredAt
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("response cache list: %w", err)
	}
	return infos, nil
}

// Clear deletes every stored response and returns how many were removed.
func (c *ResponseCache) Clear(ctx context.Context) (int, error) {
	infos, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.store.db.DropPrefix([]byte(responseKeyPrefix)); err != nil {
		return 0, fmt.Errorf("response cache clear: %w", err)
	}
	c.logger.Info("response cache cleared", slog.Int("entries", len(infos)))
	return len(infos), nil
}

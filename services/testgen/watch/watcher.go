// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch regenerates tests as source files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch of changes is handled.
const DefaultDebounce = 500 * time.Millisecond

// skippedDirs are never watched.
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// Handler processes one debounced batch of changed source files.
// A returned error stops the watcher.
type Handler func(ctx context.Context, paths []string) error

// Options configures a Watcher.
type Options struct {
	// Root is the directory watched recursively.
	Root string

	// OutputDir holds generated tests and is never watched.
	// Relative values are resolved against Root.
	OutputDir string

	// Matches selects files by their slash-separated path relative to Root.
	// Nil accepts every file.
	Matches func(rel string) bool

	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher turns filesystem events into sequential Handler calls.
//
// Thread Safety: Run must be called once. The handler is only ever
// invoked from the goroutine running Run.
type Watcher struct {
	root      string
	outputDir string
	matches   func(rel string) bool
	debounce  time.Duration
	handler   Handler
	logger    *slog.Logger
	fsw       *fsnotify.Watcher
}

// New creates a watcher and registers every directory under opts.Root.
func New(opts Options, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root %s: %w", opts.Root, err)
	}
	w := &Watcher{
		root:     root,
		matches:  opts.Matches,
		debounce: opts.Debounce,
		handler:  handler,
		logger:   opts.Logger,
	}
	if opts.OutputDir != "" {
		w.outputDir = opts.OutputDir
		if !filepath.IsAbs(w.outputDir) {
			w.outputDir = filepath.Join(root, w.outputDir)
		}
		w.outputDir = filepath.Clean(w.outputDir)
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w.fsw = fsw
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying watcher. Run closes it on return.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run blocks until ctx is canceled or the handler fails.
//
// Outputs:
//   - error: nil on cancellation, otherwise the handler or watcher error.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	w.logger.Info("watching for changes", slog.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.accept(event); ok {
				pending[path] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			batch := drain(pending)
			w.logger.Debug("handling changes", slog.Int("files", len(batch)))
			if err := w.handler(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// accept filters one event, registering new directories as they appear.
func (w *Watcher) accept(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return "", false
	}
	path := filepath.Clean(event.Name)
	if w.inOutputDir(path) {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addRecursive(path); err != nil {
				w.logger.Warn("cannot watch directory",
					slog.String("dir", path),
					slog.String("error", err.Error()))
			}
		}
		return "", false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if skippedDirs[part] {
			return "", false
		}
	}
	if w.matches != nil && !w.matches(rel) {
		return "", false
	}
	return path, true
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != w.root && skippedDirs[entry.Name()] {
			return filepath.SkipDir
		}
		if w.inOutputDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) inOutputDir(path string) bool {
	if w.outputDir == "" {
		return false
	}
	return path == w.outputDir || strings.HasPrefix(path, w.outputDir+string(filepath.Separator))
}

func drain(pending map[string]struct{}) []string {
	batch := make([]string, 0, len(pending))
	for path := range pending {
		batch = append(batch, path)
		delete(pending, path)
	}
	sort.Strings(batch)
	return batch
}

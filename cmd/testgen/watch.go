// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/analyzer"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/watch"
)

func runWatch(cmd *cobra.Command, f *cliFlags, std streams) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newGeneratingApp(ctx, cmd, f, std)
	if err != nil {
		return err
	}
	defer a.close()

	w, err := watch.New(watch.Options{
		Root:      a.root,
		OutputDir: a.cfg.Generation.OutputDir,
		Matches:   a.matches,
		Debounce:  a.cfg.Watch.Debounce,
		Logger:    a.logger,
	}, a.handleChanges)
	if err != nil {
		return err
	}

	a.console.Title(fmt.Sprintf("testgen %s watching %s", version, a.root))
	a.console.Info("press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return w.Run(gctx)
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			a.logger.Info("stopping watch", slog.String("signal", sig.String()))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	return g.Wait()
}

// handleChanges regenerates tests for one debounced batch of files.
func (a *app) handleChanges(ctx context.Context, paths []string) error {
	results := make([]analyzer.AnalysisResult, 0, len(paths))
	for _, path := range paths {
		a.builder.Forget(path)
		result, err := a.analyzer.AnalyzeFile(ctx, path)
		if errors.Is(err, ast.ErrUnsupportedLanguage) {
			continue
		}
		if err != nil {
			a.console.Warning(fmt.Sprintf("skipping %s: %v", path, err))
			continue
		}
		results = append(results, *result)
	}
	if len(results) == 0 {
		return nil
	}

	summary, err := a.pipeline.Run(ctx, results)
	a.printSummary(summary)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

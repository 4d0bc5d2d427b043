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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/cache"
)

func newCacheCmd(flags *cliFlags, std streams) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached model responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCache(cmd, flags, std, false)
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached model response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCache(cmd, flags, std, true)
		},
	}
	cacheCmd.AddCommand(listCmd, clearCmd)
	return cacheCmd
}

func runCache(cmd *cobra.Command, f *cliFlags, std streams, drop bool) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, f, std)
	if err != nil {
		return err
	}
	defer a.close()

	dir := a.cfg.Cache.Dir
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		a.console.Info(fmt.Sprintf("no response cache at %s", dir))
		return nil
	}

	storeCfg := cache.DefaultStoreConfig(dir)
	storeCfg.GCInterval = 0
	storeCfg.Logger = a.logger
	store, err := cache.OpenStore(storeCfg)
	if err != nil {
		return err
	}
	defer store.Close()
	responses := cache.NewResponseCache(store, a.cfg.Cache.TTL, a.logger)

	if drop {
		n, err := responses.Clear(ctx)
		if err != nil {
			return err
		}
		a.console.Success(fmt.Sprintf("removed %d cached response%s from %s", n, plural(n, "", "s"), dir))
		return nil
	}

	infos, err := responses.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		a.console.Info(fmt.Sprintf("response cache at %s is empty", dir))
		return nil
	}
	a.console.Title(fmt.Sprintf("%d cached response%s in %s", len(infos), plural(len(infos), "", "s"), dir))
	for _, info := range infos {
		if info.DecodeErr != nil {
			a.console.Warning(fmt.Sprintf("%s: %v", shortHash(info.Key), info.DecodeErr))
			continue
		}
		a.console.Info(fmt.Sprintf("%s  %-20s  stored %s  %s  %s",
			shortHash(info.Key),
			info.Model,
			info.StoredAt.Local().Format("2006-01-02 15:04"),
			ttlRemaining(info.ExpiresAt),
			formatBytes(info.Size)))
	}
	return nil
}

func ttlRemaining(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "no expiry"
	}
	remaining := time.Until(expiresAt)
	if remaining < 0 {
		return "expired"
	}
	return remaining.Round(time.Minute).String() + " left"
}

func shortHash(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// formatBytes formats a byte count for humans.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/1024/1024)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

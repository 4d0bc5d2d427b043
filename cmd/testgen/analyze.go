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
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTestGen/pkg/ux"
	"github.com/AleutianAI/AleutianTestGen/services/testgen/analyzer"
)

func runAnalyze(cmd *cobra.Command, f *cliFlags, std streams) error {
	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cmd, f, std)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.analyzer.AnalyzeCodebase(ctx, a.root)
	if err != nil {
		return err
	}

	if f.jsonOutput {
		enc := json.NewEncoder(std.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	writeTable(std.out, report)
	a.console.Summary("Analysis", []ux.Field{
		{Key: "Files", Value: fmt.Sprint(len(report.Results))},
		{Key: "Failed files", Value: fmt.Sprint(len(report.Failures))},
		{Key: "Components", Value: fmt.Sprint(report.ComponentCount())},
		{Key: "Need tests", Value: fmt.Sprint(report.CandidateCount())},
	})
	for _, failure := range report.Failures {
		a.console.Warning(failure.Error())
	}
	return nil
}

func writeTable(w io.Writer, report *analyzer.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCOMPONENT\tKIND\tLINES\tCOMPLEXITY\tNEEDS TEST")
	for _, res := range report.Results {
		rel, err := filepath.Rel(report.Root, res.FilePath)
		if err != nil {
			rel = res.FilePath
		}
		for _, c := range res.Components {
			needs := "no"
			if c.NeedsTest {
				needs = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%d\t%s\n",
				filepath.ToSlash(rel), c.Name, c.Kind, c.Span.StartLine, c.Span.EndLine, c.Complexity, needs)
		}
	}
	tw.Flush()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders operator-facing console output for testgen.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorTeal    = lipgloss.Color("#2CD7C7")
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#5C7A84")
)

// Styles used by Console.
var Styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTeal),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorTeal),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Key:     lipgloss.NewStyle().Foreground(ColorPrimary).Width(16),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Console writes narration to a writer, styled when it is a terminal.
type Console struct {
	out   io.Writer
	plain bool
}

// NewConsole writes to out. Styling is disabled unless out is a terminal.
func NewConsole(out io.Writer) *Console {
	plain := true
	if f, ok := out.(*os.File); ok {
		plain = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &Console{out: out, plain: plain}
}

// Plain reports whether styling is disabled.
func (c *Console) Plain() bool { return c.plain }

func (c *Console) render(s lipgloss.Style, text string) string {
	if c.plain {
		return text
	}
	return s.Render(text)
}

func (c *Console) line(icon Icon, s lipgloss.Style, text string) {
	if c.plain {
		fmt.Fprintf(c.out, "%s %s\n", icon, text)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", s.Render(string(icon)), s.Render(text))
}

// Title prints a heading.
func (c *Console) Title(text string) {
	fmt.Fprintln(c.out, c.render(Styles.Title, text))
}

// Info prints a neutral line.
func (c *Console) Info(text string) {
	if c.plain {
		fmt.Fprintln(c.out, text)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Success prints a success line.
func (c *Console) Success(text string) { c.line(IconSuccess, Styles.Success, text) }

// Warning prints a warning line.
func (c *Console) Warning(text string) { c.line(IconWarning, Styles.Warning, text) }

// Error prints an error line.
func (c *Console) Error(text string) { c.line(IconError, Styles.Error, text) }

// Preview prints the first lines of a generated file.
func (c *Console) Preview(title string, lines []string) {
	body := strings.Join(lines, "\n")
	if c.plain {
		fmt.Fprintf(c.out, "--- %s\n%s\n...\n", title, body)
		return
	}
	fmt.Fprintln(c.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+body+"\n"+Styles.Muted.Render("...")))
}

// Field is one row of a summary.
type Field struct {
	Key   string
	Value string
}

// Summary prints aligned key/value rows under a heading.
func (c *Console) Summary(title string, fields []Field) {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("\n")
		}
		if c.plain {
			fmt.Fprintf(&b, "%-16s%s", f.Key+":", f.Value)
		} else {
			b.WriteString(Styles.Key.Render(f.Key+":") + f.Value)
		}
	}
	if c.plain {
		fmt.Fprintf(c.out, "%s\n%s\n", title, b.String())
		return
	}
	fmt.Fprintln(c.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+b.String()))
}

// ComponentStarted narrates the start of one generation.
func (c *Console) ComponentStarted(name, sourcePath string) {
	c.Info(fmt.Sprintf("%s generating tests for %s (%s)", IconArrow, name, sourcePath))
}

// TestSaved narrates a written test.
func (c *Console) TestSaved(name, testPath string) {
	c.Success(fmt.Sprintf("test for %s saved: %s", name, testPath))
}

// TestPreview narrates a dry-run result.
func (c *Console) TestPreview(name, testPath string, lines []string) {
	c.Preview(fmt.Sprintf("%s (would write %s)", name, testPath), lines)
}

// ComponentFailed narrates a skipped component.
func (c *Console) ComponentFailed(name string, err error) {
	c.Warning(fmt.Sprintf("skipped %s: %v", name, err))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNoTerminal is returned by TerminalPrompter when stdin is not a TTY.
var ErrNoTerminal = errors.New("interactive input requires a terminal")

// Prompter reads interactive input for the credential flow.
type Prompter interface {
	// PromptAPIKey asks for an API key. An empty result is not an error.
	PromptAPIKey(ctx context.Context) (string, error)
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string) (bool, error)
}

// TerminalPrompter prompts on the controlling terminal with huh forms.
type TerminalPrompter struct{}

// PromptAPIKey implements Prompter with a masked input field.
func (TerminalPrompter) PromptAPIKey(ctx context.Context) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", ErrNoTerminal
	}
	var key string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Gemini API key").
			Description("Create one at https://aistudio.google.com/app/apikey").
			EchoMode(huh.EchoModePassword).
			Value(&key),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(key), nil
}

// Confirm implements Prompter.
func (TerminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false, ErrNoTerminal
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	return ok, nil
}

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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// APIKeyEnv is the environment variable holding the API key.
const APIKeyEnv = "GEMINI_API_KEY"

// DefaultConfigPaths are searched in order for a stored credential.
var DefaultConfigPaths = []string{
	".ai-test-generator.json",
	filepath.Join("config", "ai-test-generator.json"),
	filepath.Join(".config", "ai-test-generator.json"),
}

// CredentialState is the lifecycle position of the client's API key.
type CredentialState int

const (
	CredentialUnresolved CredentialState = iota
	CredentialPendingInteractive
	CredentialResolved
	CredentialFatal
)

func (s CredentialState) String() string {
	switch s {
	case CredentialPendingInteractive:
		return "pending-interactive"
	case CredentialResolved:
		return "resolved"
	case CredentialFatal:
		return "fatal"
	default:
		return "unresolved"
	}
}

// OutcomeKind tags a CredentialOutcome.
type OutcomeKind int

const (
	OutcomeResolved OutcomeKind = iota
	OutcomeNeedsInteractive
	OutcomeFatal
)

// CredentialOutcome is the result of ResolveCredential.
//
// Key and Source are set only when Kind is OutcomeResolved. Source is one of
// "option", "env" or the config file path the key was read from.
type CredentialOutcome struct {
	Kind   OutcomeKind
	Key    string
	Source string
}

// credentialFile is the on-disk credential format.
type credentialFile struct {
	APIKey string `json:"apiKey,omitempty"`
}

// ResolveCredential looks for an API key without touching the terminal.
//
// Description:
//
//	Sources are tried in order: the explicit value, the APIKeyEnv variable,
//	then each config path. The first non-blank key wins. A config file that
//	is missing or unreadable is skipped; a file that fails to parse is
//	logged and skipped. When nothing is found the outcome is
//	NeedsInteractive if interactive is true, otherwise Fatal.
//
// Inputs:
//   - explicit: Key passed by the caller; may be empty.
//   - getenv: Environment lookup; nil uses os.Getenv.
//   - paths: Config file paths in priority order.
//   - interactive: Whether a terminal prompt may be used later.
//
// Outputs:
//   - CredentialOutcome: Never an error; failure is the Fatal outcome.
func ResolveCredential(explicit string, getenv func(string) string, paths []string, interactive bool) CredentialOutcome {
	if getenv == nil {
		getenv = os.Getenv
	}
	if key := strings.TrimSpace(explicit); key != "" {
		return CredentialOutcome{Kind: OutcomeResolved, Key: key, Source: "option"}
	}
	if key := strings.TrimSpace(getenv(APIKeyEnv)); key != "" {
		return CredentialOutcome{Kind: OutcomeResolved, Key: key, Source: "env"}
	}
	for _, path := range paths {
		key, err := LoadCredential(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("ignoring unreadable credential file",
					slog.String("path", path),
					slog.String("error", SafeLogString(err.Error())))
			}
			continue
		}
		if key != "" {
			return CredentialOutcome{Kind: OutcomeResolved, Key: key, Source: path}
		}
	}
	if interactive {
		return CredentialOutcome{Kind: OutcomeNeedsInteractive}
	}
	return CredentialOutcome{Kind: OutcomeFatal}
}

// LoadCredential reads the apiKey field from a JSON config file.
// A file without the field yields "" and a nil error.
func LoadCredential(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return strings.TrimSpace(cf.APIKey), nil
}

// SaveCredential merges apiKey into the JSON object stored at path.
//
// Other fields already in the file are preserved. A file that does not
// parse as an object is replaced. The file is written with mode 0600 and
// parent directories are created as needed.
func SaveCredential(path, key string) error {
	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil || doc == nil {
			doc = map[string]any{}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	doc["apiKey"] = key

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

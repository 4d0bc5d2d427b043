// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast extracts testable components from TypeScript and JavaScript
// source using tree-sitter.
//
// A Component is a named, boundaried unit of code (function, class, method,
// interface) together with a structural complexity score. The extractor walks
// the syntax tree depth-first with an immutable ancestor stack and emits at
// most one Component per node.
package ast

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the largest source file the extractor accepts.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// WarnFileSize triggers a warning log for large (but accepted) files.
const WarnFileSize = 1024 * 1024

// AnonymousFunctionName names function expressions that have no binding.
const AnonymousFunctionName = "anonymousFunction"

// ComponentKind classifies an extracted component.
//
// The set is closed. Other is never produced by the extractor but is a valid
// value for components built elsewhere (for example, deserialized reports).
type ComponentKind int

const (
	KindOther ComponentKind = iota
	KindFunction
	KindClass
	KindMethod
	KindInterface
)

var kindNames = map[ComponentKind]string{
	KindOther:     "other",
	KindFunction:  "function",
	KindClass:     "class",
	KindMethod:    "method",
	KindInterface: "interface",
}

// String returns the lowercase kind name.
func (k ComponentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ComponentKind(%d)", int(k))
}

// MarshalText encodes the kind as its name.
func (k ComponentKind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown component kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ComponentKind) UnmarshalText(b []byte) error {
	parsed, err := ParseComponentKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseComponentKind converts a kind name back into a ComponentKind.
func ParseComponentKind(s string) (ComponentKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindOther, fmt.Errorf("unknown component kind %q", s)
}

// Variant selects the grammar family for a source file.
//
// Strict files (TypeScript) additionally yield interfaces and type aliases.
// Loose files (JavaScript) additionally yield object-literal methods.
type Variant int

const (
	VariantLoose Variant = iota
	VariantStrict
)

// String returns the language name of the variant.
func (v Variant) String() string {
	if v == VariantStrict {
		return "typescript"
	}
	return "javascript"
}

var variantByExtension = map[string]Variant{
	".ts":  VariantStrict,
	".tsx": VariantStrict,
	".mts": VariantStrict,
	".cts": VariantStrict,
	".js":  VariantLoose,
	".jsx": VariantLoose,
	".mjs": VariantLoose,
	".cjs": VariantLoose,
}

// VariantForPath returns the variant implied by a file's extension.
func VariantForPath(path string) (Variant, bool) {
	v, ok := variantByExtension[strings.ToLower(filepath.Ext(path))]
	return v, ok
}

// Span is a 1-based inclusive line range.
type Span struct {
	StartLine int `json:"start_line" yaml:"start_line"`
	EndLine   int `json:"end_line" yaml:"end_line"`
}

// Lines returns the number of lines covered by the span.
func (s Span) Lines() int {
	return s.EndLine - s.StartLine + 1
}

// Component is one extracted testable unit.
//
// Members are named "<Enclosing>.<member>". SourceText is the exact byte
// range of the node in the original file. NeedsTest is assigned once by the
// triage package after extraction.
type Component struct {
	Name       string        `json:"name" yaml:"name"`
	Kind       ComponentKind `json:"kind" yaml:"kind"`
	Span       Span          `json:"span" yaml:"span"`
	SourceText string        `json:"source_text" yaml:"source_text"`
	Complexity int           `json:"complexity" yaml:"complexity"`
	NeedsTest  bool          `json:"needs_test" yaml:"needs_test"`
}

// Validate checks the structural invariants of a component.
func (c Component) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("component has empty name")
	}
	if c.Span.StartLine < 1 || c.Span.EndLine < c.Span.StartLine {
		return fmt.Errorf("component %s: invalid span %d-%d", c.Name, c.Span.StartLine, c.Span.EndLine)
	}
	if c.Complexity < 1 {
		return fmt.Errorf("component %s: complexity %d below 1", c.Name, c.Complexity)
	}
	return nil
}

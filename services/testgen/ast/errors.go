// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for extraction failures. Check with errors.Is.
var (
	// ErrUnsupportedLanguage indicates that no extractor handles the file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidContent indicates content that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content larger than the configured limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrSyntax is the cause of every ParseError raised for a malformed tree.
	ErrSyntax = errors.New("syntax error")
)

// ParseError reports a syntax error at a location in a source file.
//
// The extractor returns a ParseError when tree-sitter produced ERROR or
// MISSING nodes. The analyzer treats it as a per-file failure: the file is
// skipped and the run continues.
//
// Example:
//
//	var parseErr *ParseError
//	if errors.As(err, &parseErr) {
//	    fmt.Printf("skipping %s:%d\n", parseErr.FilePath, parseErr.Line)
//	}
type ParseError struct {
	// FilePath is the file that failed to parse.
	FilePath string

	// Line is the 1-indexed line of the first error node. 0 if unknown.
	Line int

	// Column is the 1-indexed column of the first error node. 0 if unknown.
	Column int

	// Message describes the error.
	Message string

	// Cause is the underlying error. Defaults to ErrSyntax.
	Cause error
}

// Error formats the error as "file:line:col: message", dropping the
// location parts that are unknown.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewSyntaxError builds a ParseError caused by ErrSyntax.
func NewSyntaxError(filePath string, line, column int, message string) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   column,
		Message:  message,
		Cause:    ErrSyntax,
	}
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package triage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/ast"
)

func lines(n int) string {
	return strings.TrimSuffix(strings.Repeat("x\n", n), "\n")
}

func TestNeedsTest(t *testing.T) {
	tests := []struct {
		name string
		c    ast.Component
		want bool
	}{
		{"function always", ast.Component{Kind: ast.KindFunction, Complexity: 1, SourceText: "f"}, true},
		{"class always", ast.Component{Kind: ast.KindClass, Complexity: 1}, true},
		{"method complexity 3", ast.Component{Kind: ast.KindMethod, Complexity: 3, SourceText: lines(2)}, true},
		{"method complexity 2 short", ast.Component{Kind: ast.KindMethod, Complexity: 2, SourceText: lines(2)}, false},
		{"method 16 lines", ast.Component{Kind: ast.KindMethod, Complexity: 1, SourceText: lines(16)}, true},
		{"method exactly 15 lines", ast.Component{Kind: ast.KindMethod, Complexity: 1, SourceText: lines(15)}, false},
		{"interface short", ast.Component{Kind: ast.KindInterface, Complexity: 1, SourceText: lines(3)}, false},
		{"interface long", ast.Component{Kind: ast.KindInterface, Complexity: 1, SourceText: lines(16)}, true},
		{"other empty text", ast.Component{Kind: ast.KindOther, Complexity: 1, SourceText: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsTest(tt.c))
		})
	}
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 0, LineCount(""))
	assert.Equal(t, 1, LineCount("a"))
	assert.Equal(t, 2, LineCount("a\r\nb"))
	assert.Equal(t, 3, LineCount("a\n\nc"))
}

func TestPolicy_ApplyAndCount(t *testing.T) {
	components := []ast.Component{
		{Name: "f", Kind: ast.KindFunction, Complexity: 1},
		{Name: "C.m", Kind: ast.KindMethod, Complexity: 1, SourceText: "m() {}"},
		{Name: "I", Kind: ast.KindInterface, Complexity: 1, SourceText: "interface I {}"},
	}

	DefaultPolicy().Apply(components)

	assert.True(t, components[0].NeedsTest)
	assert.False(t, components[1].NeedsTest)
	assert.False(t, components[2].NeedsTest)
	assert.Equal(t, 1, Count(components))
}

func TestPolicy_CustomThresholds(t *testing.T) {
	p := Policy{MethodComplexityThreshold: 0, LineThreshold: 100}
	assert.True(t, p.NeedsTest(ast.Component{Kind: ast.KindMethod, Complexity: 1}))
	assert.False(t, p.NeedsTest(ast.Component{Kind: ast.KindInterface, SourceText: lines(50)}))
}

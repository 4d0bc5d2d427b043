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
	"context"
	"encoding/json"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseJS(t *testing.T, src string) (*sitter.Tree, []byte) {
	t.Helper()
	content := []byte(src)
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree, content
}

func TestWalk_PreOrderNamedNodes(t *testing.T) {
	tree, _ := parseJS(t, "a;\nb;\n")

	var types []string
	var depths []int
	Walk(tree.RootNode(), nil, func(n *sitter.Node, anc *Ancestors) {
		types = append(types, n.Type())
		depths = append(depths, anc.Depth())
	})

	assert.Equal(t, []string{"program", "expression_statement", "identifier", "expression_statement", "identifier"}, types)
	assert.Equal(t, []int{0, 1, 2, 1, 2}, depths)
}

func TestWalk_NilRoot(t *testing.T) {
	called := false
	Walk(nil, nil, func(*sitter.Node, *Ancestors) { called = true })
	assert.False(t, called)
}

func TestAncestors_PushDoesNotMutate(t *testing.T) {
	tree, _ := parseJS(t, "a;\n")
	root := tree.RootNode()
	stmt := root.NamedChild(0)

	var empty *Ancestors
	one := empty.Push(root)
	two := one.Push(stmt)

	assert.Equal(t, 0, empty.Depth())
	assert.Equal(t, 1, one.Depth())
	assert.Equal(t, 2, two.Depth())
	assert.Equal(t, "program", one.Parent().Type())
	assert.Equal(t, "expression_statement", two.Parent().Type())
	assert.Equal(t, "program", two.Grandparent().Type())
	assert.Same(t, one, two.Pop())
	assert.Nil(t, empty.Parent())
	assert.Nil(t, one.Grandparent())
}

func TestAncestors_Find(t *testing.T) {
	tree, content := parseJS(t, "class K {\n  m() { return 1; }\n}\n")

	var enclosing string
	Walk(tree.RootNode(), nil, func(n *sitter.Node, anc *Ancestors) {
		if n.Type() != nodeMethodDefinition {
			return
		}
		if class := anc.Find(isClassDeclaration); class != nil {
			enclosing = fieldText(class, "name", content)
		}
	})
	assert.Equal(t, "K", enclosing)
}

func TestCalculateComplexity_NilNode(t *testing.T) {
	assert.Equal(t, 1, CalculateComplexity(nil))
}

func TestCalculateComplexity_DefaultCaseNotCounted(t *testing.T) {
	tree, _ := parseJS(t, "switch (x) {\n  case 1: break;\n  default: break;\n}\n")
	assert.Equal(t, 2, CalculateComplexity(tree.RootNode()))
}

func TestComponentKind_TextRoundTrip(t *testing.T) {
	raw, err := json.Marshal(Component{Name: "f", Kind: KindMethod, Span: Span{1, 1}, Complexity: 1})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"method"`)

	var decoded Component
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, KindMethod, decoded.Kind)

	_, err = ParseComponentKind("lambda")
	assert.Error(t, err)
	assert.Equal(t, "ComponentKind(42)", ComponentKind(42).String())
}

func TestVariantForPath(t *testing.T) {
	v, ok := VariantForPath("src/a.TSX")
	assert.True(t, ok)
	assert.Equal(t, VariantStrict, v)

	v, ok = VariantForPath("lib/b.mjs")
	assert.True(t, ok)
	assert.Equal(t, VariantLoose, v)

	_, ok = VariantForPath("main.go")
	assert.False(t, ok)
}

func TestRegistry_Dispatch(t *testing.T) {
	r := DefaultRegistry()

	ex, ok := r.ForPath("x/y/z.ts")
	require.True(t, ok)
	assert.Equal(t, "typescript", ex.Language())

	ex, ok = r.ForPath("index.JS")
	require.True(t, ok)
	assert.Equal(t, "javascript", ex.Language())

	_, err := r.Extract(context.Background(), []byte("def f(): pass"), "f.py")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	assert.Contains(t, r.Extensions(), ".cjs")
}

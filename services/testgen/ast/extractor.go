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
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ExtractorOption configures an Extractor instance.
type ExtractorOption func(*Extractor)

// WithMaxFileSize sets the maximum content size the extractor will accept.
//
// Example:
//
//	extractor := NewTypeScriptExtractor(WithMaxFileSize(5 * 1024 * 1024))
func WithMaxFileSize(bytes int64) ExtractorOption {
	return func(e *Extractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// WithTolerateSyntaxErrors makes Extract return components from trees that
// contain ERROR or MISSING nodes instead of failing with a ParseError.
func WithTolerateSyntaxErrors(tolerate bool) ExtractorOption {
	return func(e *Extractor) {
		e.tolerateSyntaxErrors = tolerate
	}
}

// WithLogger sets the logger used for large-file and syntax warnings.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor turns TypeScript or JavaScript source into Components.
//
// Description:
//
//	Extractor parses source with tree-sitter and walks the tree depth-first,
//	emitting at most one Component per node. Each Extract call creates its
//	own tree-sitter parser, so one Extractor may serve many goroutines.
//
// Thread Safety:
//
//	Extractor instances are safe for concurrent use.
//
// Example:
//
//	extractor := NewTypeScriptExtractor()
//	components, err := extractor.Extract(ctx, []byte("class Foo { bar() {} }"), "foo.ts")
//	if err != nil {
//	    return err
//	}
//	for _, c := range components {
//	    fmt.Printf("%s %s (complexity %d)\n", c.Kind, c.Name, c.Complexity)
//	}
type Extractor struct {
	variant              Variant
	maxFileSize          int64
	tolerateSyntaxErrors bool
	logger               *slog.Logger
}

// NewExtractor creates an Extractor for the given variant.
func NewExtractor(variant Variant, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		variant:     variant,
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewTypeScriptExtractor creates an Extractor for strict (TypeScript) files.
func NewTypeScriptExtractor(opts ...ExtractorOption) *Extractor {
	return NewExtractor(VariantStrict, opts...)
}

// NewJavaScriptExtractor creates an Extractor for loose (JavaScript) files.
func NewJavaScriptExtractor(opts ...ExtractorOption) *Extractor {
	return NewExtractor(VariantLoose, opts...)
}

// Variant returns the grammar family this extractor handles.
func (e *Extractor) Variant() Variant {
	return e.variant
}

// Language returns the canonical language name.
func (e *Extractor) Language() string {
	return e.variant.String()
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	if e.variant == VariantStrict {
		return []string{".ts", ".tsx", ".mts", ".cts"}
	}
	return []string{".js", ".jsx", ".mjs", ".cjs"}
}

// Extract parses content and returns its components in traversal order.
//
// Description:
//
//	Validates the content, parses it with the grammar matching the variant
//	and file extension, rejects malformed trees (unless configured to
//	tolerate them) and walks the tree collecting components.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Path used for grammar selection and error reporting.
//
// Outputs:
//   - []Component: Components in depth-first order. Never nil on success.
//   - error: Non-nil on failure:
//   - ErrFileTooLarge: content exceeds the size limit
//   - ErrInvalidContent: content is not valid UTF-8
//   - *ParseError: the tree contains syntax errors
//   - context errors: ctx was canceled
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (e *Extractor) Extract(ctx context.Context, content []byte, filePath string) ([]Component, error) {
	language := e.Language()
	ctx, span := startParseSpan(ctx, language, filePath, len(content))
	defer span.End()

	start := time.Now()
	fail := func(err error) ([]Component, error) {
		setParseSpanResult(span, 0, err)
		recordParseMetrics(ctx, language, time.Since(start), 0, false)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("extract canceled before start: %w", err))
	}

	if int64(len(content)) > e.maxFileSize {
		return fail(fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), e.maxFileSize))
	}

	if len(content) > WarnFileSize {
		e.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return fail(fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent))
	}

	parser := sitter.NewParser()
	parser.SetLanguage(e.grammarFor(filePath))

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fail(fmt.Errorf("tree-sitter parse failed: %w", err))
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("extract canceled after tree-sitter: %w", err))
	}

	root := tree.RootNode()
	if root == nil {
		return fail(NewSyntaxError(filePath, 0, 0, "tree-sitter returned nil root node"))
	}

	if root.HasError() {
		parseErr := syntaxErrorAt(root, filePath)
		if !e.tolerateSyntaxErrors {
			return fail(parseErr)
		}
		e.logger.Warn("extracting from file with syntax errors",
			slog.String("file", filePath),
			slog.String("error", parseErr.Error()))
	}

	components := e.ExtractTree(root, content)

	setParseSpanResult(span, len(components), nil)
	recordParseMetrics(ctx, language, time.Since(start), len(components), true)

	return components, nil
}

// ExtractTree walks an already-parsed tree. content must be the bytes the
// tree was parsed from.
func (e *Extractor) ExtractTree(root *sitter.Node, content []byte) []Component {
	components := make([]Component, 0)
	Walk(root, nil, func(node *sitter.Node, ancestors *Ancestors) {
		if c, ok := e.componentFor(node, ancestors, content); ok {
			components = append(components, c)
		}
	})
	return components
}

func (e *Extractor) grammarFor(filePath string) *sitter.Language {
	if e.variant == VariantStrict {
		if strings.HasSuffix(strings.ToLower(filePath), ".tsx") {
			return tsx.GetLanguage()
		}
		return typescript.GetLanguage()
	}
	return javascript.GetLanguage()
}

// componentFor dispatches on node type. At most one component per node.
func (e *Extractor) componentFor(node *sitter.Node, ancestors *Ancestors, content []byte) (Component, bool) {
	switch node.Type() {
	case nodeFunctionDeclaration, nodeGeneratorFunctionDeclaration:
		name := fieldText(node, "name", content)
		if name == "" {
			return Component{}, false
		}
		return newComponent(name, KindFunction, node, content, CalculateComplexity(node)), true

	case nodeClassDeclaration, nodeAbstractClassDeclaration:
		name := fieldText(node, "name", content)
		if name == "" {
			return Component{}, false
		}
		return newComponent(name, KindClass, node, content, CalculateComplexity(node)), true

	case nodeMethodDefinition:
		return e.methodComponent(node, ancestors, content)

	case nodeInterfaceDeclaration, nodeTypeAliasDeclaration:
		if e.variant != VariantStrict {
			return Component{}, false
		}
		name := fieldText(node, "name", content)
		if name == "" {
			return Component{}, false
		}
		return newComponent(name, KindInterface, node, content, 1), true

	case nodeArrowFunction, nodeFunctionExpression, nodeFunction, nodeGeneratorFunction:
		return functionExpressionComponent(node, ancestors, content)
	}
	return Component{}, false
}

// methodComponent handles class methods and, for loose files, object-literal
// shorthand methods.
func (e *Extractor) methodComponent(node *sitter.Node, ancestors *Ancestors, content []byte) (Component, bool) {
	name := propertyName(node.ChildByFieldName("name"), content)
	if name == "" {
		return Component{}, false
	}
	complexity := CalculateComplexity(node)

	parent := ancestors.Parent()
	if e.variant == VariantLoose && parent != nil && parent.Type() == nodeObject {
		if binding := bindingName(ancestors.Pop(), content); binding != "" {
			name = binding + "." + name
		}
		return newComponent(name, KindFunction, node, content, complexity), true
	}

	if class := ancestors.Find(isClassDeclaration); class != nil {
		if className := fieldText(class, "name", content); className != "" {
			name = className + "." + name
		}
	}
	return newComponent(name, KindMethod, node, content, complexity), true
}

// functionExpressionComponent handles arrow functions and function
// expressions. Trivial expressions are dropped unless they stand alone as a
// statement.
func functionExpressionComponent(node *sitter.Node, ancestors *Ancestors, content []byte) (Component, bool) {
	ownName := fieldText(node, "name", content)
	parent := ancestors.Parent()

	// export default function () {}
	if parent != nil && parent.Type() == nodeExportStatement &&
		node.Type() != nodeArrowFunction && ownName == "" {
		return Component{}, false
	}

	name := bindingName(ancestors, content)
	if name == "" {
		name = ownName
	}
	if name == "" {
		name = AnonymousFunctionName
	}

	complexity := CalculateComplexity(node)
	if complexity <= 1 && !isStandaloneStatement(ancestors) {
		return Component{}, false
	}
	return newComponent(name, KindFunction, node, content, complexity), true
}

// bindingName returns the name a value is bound to by its immediate parent:
// a variable declarator's identifier or an object pair's key.
func bindingName(ancestors *Ancestors, content []byte) string {
	parent := ancestors.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case nodeVariableDeclarator:
		nameNode := parent.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != nodeIdentifier {
			return ""
		}
		return nodeText(nameNode, content)
	case nodePair:
		return propertyName(parent.ChildByFieldName("key"), content)
	}
	return ""
}

func isStandaloneStatement(ancestors *Ancestors) bool {
	parent := ancestors.Parent()
	if parent == nil {
		return false
	}
	if parent.Type() == nodeExpressionStatement {
		return true
	}
	if parent.Type() == nodeParenthesizedExpression {
		grand := ancestors.Grandparent()
		return grand != nil && grand.Type() == nodeExpressionStatement
	}
	return false
}

func isClassDeclaration(n *sitter.Node) bool {
	t := n.Type()
	return t == nodeClassDeclaration || t == nodeAbstractClassDeclaration
}

func newComponent(name string, kind ComponentKind, node *sitter.Node, content []byte, complexity int) Component {
	return Component{
		Name: name,
		Kind: kind,
		Span: Span{
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
		},
		SourceText: nodeText(node, content),
		Complexity: complexity,
	}
}

// propertyName returns a property key as written, minus string quotes.
func propertyName(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	text := nodeText(n, content)
	if n.Type() == nodeString && len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}

func fieldText(n *sitter.Node, field string, content []byte) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, content)
}

func nodeText(n *sitter.Node, content []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(content) || start > end {
		return ""
	}
	return string(content[start:end])
}

// syntaxErrorAt locates the first ERROR or MISSING node below root.
func syntaxErrorAt(root *sitter.Node, filePath string) *ParseError {
	bad := findErrorNode(root)
	if bad == nil {
		return NewSyntaxError(filePath, 0, 0, "source contains syntax errors")
	}
	point := bad.StartPoint()
	msg := "unexpected syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %s", bad.Type())
	}
	return NewSyntaxError(filePath, int(point.Row)+1, int(point.Column)+1, msg)
}

func findErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

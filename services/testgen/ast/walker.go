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
	sitter "github.com/smacker/go-tree-sitter"
)

// Ancestors is an immutable stack of syntax nodes, nearest ancestor on top.
//
// Description:
//
//	Push returns a new stack that shares its tail with the receiver, so a
//	visitor can hold on to the stack it was given without it changing under
//	it as the walk continues. The nil *Ancestors is the empty stack.
//
// Thread Safety: Immutable; safe for concurrent use.
type Ancestors struct {
	node   *sitter.Node
	parent *Ancestors
	depth  int
}

// Push returns a new stack with node on top.
func (a *Ancestors) Push(node *sitter.Node) *Ancestors {
	return &Ancestors{node: node, parent: a, depth: a.Depth() + 1}
}

// Depth returns the number of nodes on the stack.
func (a *Ancestors) Depth() int {
	if a == nil {
		return 0
	}
	return a.depth
}

// Parent returns the nearest ancestor, or nil for the empty stack.
func (a *Ancestors) Parent() *sitter.Node {
	if a == nil {
		return nil
	}
	return a.node
}

// Grandparent returns the second-nearest ancestor, or nil.
func (a *Ancestors) Grandparent() *sitter.Node {
	if a == nil {
		return nil
	}
	return a.parent.Parent()
}

// Pop returns the stack without its top element.
func (a *Ancestors) Pop() *Ancestors {
	if a == nil {
		return nil
	}
	return a.parent
}

// Find returns the nearest ancestor satisfying match, or nil.
func (a *Ancestors) Find(match func(*sitter.Node) bool) *sitter.Node {
	for cur := a; cur != nil; cur = cur.parent {
		if match(cur.node) {
			return cur.node
		}
	}
	return nil
}

// Visitor is called once per named node with the node's ancestors.
type Visitor func(node *sitter.Node, ancestors *Ancestors)

// Walk visits root and every named descendant depth-first, in source order.
//
// Description:
//
//	The visitor sees each node before its children. ancestors is the stack
//	above root; pass nil to walk a subtree in isolation.
//
// Inputs:
//   - root: Subtree to walk. A nil root is a no-op.
//   - ancestors: Stack of nodes above root. May be nil.
//   - visit: Callback for each node. Must not be nil.
func Walk(root *sitter.Node, ancestors *Ancestors, visit Visitor) {
	if root == nil {
		return
	}
	visit(root, ancestors)
	below := ancestors.Push(root)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		Walk(root.NamedChild(i), below, visit)
	}
}

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

// branchingNodeTypes are the node types that each add one decision point.
// for_in_statement covers both for-in and for-of in both grammars.
var branchingNodeTypes = map[string]bool{
	nodeIfStatement:    true,
	nodeTernary:        true,
	nodeForStatement:   true,
	nodeForInStatement: true,
	nodeWhileStatement: true,
	nodeDoStatement:    true,
	nodeSwitchCase:     true,
	nodeCatchClause:    true,
}

// CalculateComplexity returns 1 plus the number of decision points in the
// subtree rooted at node.
//
// Description:
//
//	Decision points are conditionals, ternaries, loops, non-default switch
//	cases, catch clauses and short-circuit && / || expressions. The count
//	descends into nested function bodies, so an outer function's score
//	includes its inner functions' branches. Default switch clauses, ??, and
//	optional chaining are not counted.
//
// Inputs:
//   - node: Root of the subtree. A nil node scores 1.
//
// Outputs:
//   - int: Always >= 1.
func CalculateComplexity(node *sitter.Node) int {
	complexity := 1
	Walk(node, nil, func(n *sitter.Node, _ *Ancestors) {
		if isDecisionPoint(n) {
			complexity++
		}
	})
	return complexity
}

func isDecisionPoint(n *sitter.Node) bool {
	t := n.Type()
	if branchingNodeTypes[t] {
		return true
	}
	if t != nodeBinaryExpression {
		return false
	}
	op := n.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	switch op.Type() {
	case "&&", "||":
		return true
	}
	return false
}

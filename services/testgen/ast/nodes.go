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

// Tree-sitter node types shared by the typescript, tsx and javascript grammars.
const (
	nodeFunctionDeclaration          = "function_declaration"
	nodeGeneratorFunctionDeclaration = "generator_function_declaration"
	nodeFunctionExpression           = "function_expression"
	nodeFunction                     = "function" // older grammars name function expressions "function"
	nodeGeneratorFunction            = "generator_function"
	nodeArrowFunction                = "arrow_function"
	nodeClassDeclaration             = "class_declaration"
	nodeAbstractClassDeclaration     = "abstract_class_declaration"
	nodeMethodDefinition             = "method_definition"
	nodeInterfaceDeclaration         = "interface_declaration"
	nodeTypeAliasDeclaration         = "type_alias_declaration"

	nodeVariableDeclarator      = "variable_declarator"
	nodePair                    = "pair"
	nodeObject                  = "object"
	nodeExportStatement         = "export_statement"
	nodeExpressionStatement     = "expression_statement"
	nodeParenthesizedExpression = "parenthesized_expression"
	nodeIdentifier              = "identifier"
	nodeString                  = "string"

	nodeIfStatement      = "if_statement"
	nodeTernary          = "ternary_expression"
	nodeForStatement     = "for_statement"
	nodeForInStatement   = "for_in_statement"
	nodeWhileStatement   = "while_statement"
	nodeDoStatement      = "do_statement"
	nodeSwitchCase       = "switch_case"
	nodeCatchClause      = "catch_clause"
	nodeBinaryExpression = "binary_expression"
)

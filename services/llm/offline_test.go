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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfflineComponentName(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"name line", "Component name: Cart.total\nclass Cart {}", "Cart.total"},
		{"fenced function", "Here's the component to test:\n```typescript\nexport function sum(a, b) {}\n```", "sum"},
		{"fenced const", "Here's the component to test:\n```javascript\nconst handler = () => 1;\n```", "handler"},
		{"nothing", "write some tests", UnknownComponentName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OfflineComponentName(tt.prompt))
		})
	}
}

func TestOfflineTemplate_Shapes(t *testing.T) {
	class := OfflineTemplate("Component name: Cart.total\nclass Cart { total() {} }")
	assert.Contains(t, class, "import { Cart } from './path-to-module';")
	assert.Contains(t, class, "describe('Cart.total'")
	assert.Contains(t, class, "instance = new Cart();")

	fn := OfflineTemplate("Component name: sum\nfunction sum() {}")
	assert.Contains(t, fn, "expect(sum).toBeDefined();")
	assert.NotContains(t, fn, "beforeEach")

	unknown := OfflineTemplate("")
	assert.Contains(t, unknown, "describe('UnknownComponent'")
}

func TestOfflineTemplate_Deterministic(t *testing.T) {
	p := "Component name: Store\nclass Store {}"
	assert.Equal(t, OfflineTemplate(p), OfflineTemplate(p))
}

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
	"regexp"
	"strings"
)

var (
	codeFence       = regexp.MustCompile("```[\\w+#.-]*[ \\t]*\\r?\\n?([\\s\\S]*?)```")
	proseLinePrefix = regexp.MustCompile(`(?m)^(#|>|Explanation:).*$\r?\n?`)
)

// ExtractCode pulls test code out of a raw model response.
//
// Fenced blocks win: their bodies are joined in order with a blank line.
// Without fences, heading, blockquote and "Explanation:" lines are removed
// from the raw text. The result may be empty, which callers treat as no
// usable code.
func ExtractCode(raw string) string {
	matches := codeFence.FindAllStringSubmatch(raw, -1)
	if len(matches) > 0 {
		blocks := make([]string, 0, len(matches))
		for _, m := range matches {
			blocks = append(blocks, strings.TrimRight(m[1], " \t\r\n"))
		}
		return strings.Join(blocks, "\n\n")
	}
	return strings.TrimSpace(proseLinePrefix.ReplaceAllString(raw, ""))
}

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
)

// redactionPattern pairs a compiled regex with a replacement label.
//
// Thread Safety: This type is immutable after construction.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of secret patterns to redact.
//
// Order matters: the labeled Google key pattern runs before the generic
// key=/apiKey patterns so the label survives.
var redactionPatterns = []redactionPattern{
	// Google API key: AIza<base62, 30+ chars>
	{
		Pattern:     regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`),
		Replacement: "[REDACTED:gemini_key]",
	},
	// OAuth access token issued by Google: ya29.<...>
	{
		Pattern:     regexp.MustCompile(`ya29\.[A-Za-z0-9._-]{20,}`),
		Replacement: "[REDACTED:oauth_token]",
	},
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// "apiKey": "<value>" in JSON config content
	{
		Pattern:     regexp.MustCompile(`("api_?[kK]ey"\s*:\s*")[^"]{6,}(")`),
		Replacement: "${1}[REDACTED]${2}",
	},
	// API key in URL query parameter or header dump: key=<value>
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
}

// SafeLogString redacts known secret patterns from a string before logging.
//
// Description:
//
//	Error bodies from the model service can echo request metadata, and
//	configuration files hold the API key in plain text. Every string that
//	may contain either is passed through here before it reaches a log line
//	or an error message.
//
// Examples:
//
//	SafeLogString("bad key AIzaSyAbcDefGhiJklMnoPqrStUvWxYz01234567")
//	// Returns: "bad key [REDACTED:gemini_key]"
//
// Limitations:
//   - Pattern-based detection only; keys in unknown formats pass through.
//   - A secret that spans multiple lines will not be matched.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// MaskKey renders a key for display, keeping only its last four characters.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// text.go - UTF-8 safe string helpers.

package util

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most maxRunes characters, ending with "…" when
// it cuts. Newlines are folded into spaces so the result fits on one line.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes == 1 {
		return string(runes[:1])
	}
	return string(runes[:maxRunes-1]) + "…"
}

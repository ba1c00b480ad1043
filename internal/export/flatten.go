// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/jeranaias/docchat/internal/timeline"
)

var (
	// strict removes every tag; safe for concurrent use once built
	strict = bluemonday.StrictPolicy()

	// blockTags end a line when markup is flattened
	blockTags = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|h[1-6]|tr|pre|blockquote)>`)
	listItem  = regexp.MustCompile(`(?i)<li[^>]*>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// Flatten turns assistant markup into plain text. Block elements become
// line breaks and list items get a bullet.
func Flatten(markup string) string {
	s := blockTags.ReplaceAllString(markup, "\n")
	s = listItem.ReplaceAllString(s, "• ")
	s = strict.Sanitize(s)
	s = html.UnescapeString(s)
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// MessageText is the text of m as displayed, spoken and exported.
func MessageText(m timeline.Message) string {
	if m.Rich {
		return Flatten(m.Text)
	}
	return m.Text
}

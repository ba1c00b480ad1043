// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
)

// TextExporter exports transcripts as plain text, one block per message.
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a new plain text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// Export converts a transcript to plain text.
func (e *TextExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder
	if e.options.IncludeMetadata {
		title := t.Title
		if title == "" {
			title = "Conversation"
		}
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("=", len([]rune(title))) + "\n")
		if t.ChatID != "" {
			fmt.Fprintf(&sb, "id : %s\n", t.ChatID)
		}
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "créée : %s\n", formatTimestamp(t.CreatedAt))
		}
		sb.WriteString("\n")
	}

	for _, m := range t.Messages {
		label := senderLabel(m.Sender)
		if e.options.IncludeTimestamps && !m.CreatedAt.IsZero() {
			label = fmt.Sprintf("[%s] %s", formatTimestamp(m.CreatedAt), label)
		}
		if note := statusNote(m.Status); note != "" {
			label += " (" + note + ")"
		}
		fmt.Fprintf(&sb, "%s :\n%s\n\n", label, MessageText(m))
	}
	return []byte(strings.TrimRight(sb.String(), "\n") + "\n"), nil
}

// FileExtension returns the file extension for plain text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for plain text.
func (e *TextExporter) MimeType() string {
	return "text/plain; charset=utf-8"
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/docchat/internal/timeline"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown with a YAML front matter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontMatter is the metadata block of a Markdown export.
type frontMatter struct {
	Title     string `yaml:"title"`
	ChatID    string `yaml:"chat_id,omitempty"`
	Date      string `yaml:"date,omitempty"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	title := t.Title
	if title == "" {
		title = "Conversation"
	}

	var sb strings.Builder
	if e.options.IncludeMetadata {
		meta := frontMatter{
			Title:     title,
			ChatID:    t.ChatID,
			Messages:  len(t.Messages),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "docchat",
		}
		if !t.CreatedAt.IsZero() {
			meta.Date = t.CreatedAt.Format(time.RFC3339)
		}
		data, err := yaml.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(data)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range t.Messages {
		label := senderLabel(msg.Sender)
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(quoteBlock(MessageText(msg)))
		sb.WriteString("\n")
		if note := statusNote(msg.Status); note != "" {
			fmt.Fprintf(&sb, "\n*%s*\n", note)
		}
		if i < len(t.Messages)-1 {
			sb.WriteString("\n---\n\n")
		}
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// quoteBlock keeps message lines apart so Markdown does not join them.
func quoteBlock(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t") + "  "
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " ") + "\n"
}

func statusNote(s timeline.Status) string {
	switch s {
	case timeline.StatusFailed:
		return "échec"
	case timeline.StatusPendingResponse, timeline.StatusPendingUpload, timeline.StatusPendingOcr:
		return "en attente"
	}
	return ""
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
		"\n", " ",
	)
	return r.Replace(s)
}

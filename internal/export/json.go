// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. The document always carries
// every message; Options only controls the timestamps.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	ChatID     string        `json:"chat_id,omitempty"`
	Title      string        `json:"title"`
	CreatedAt  string        `json:"created_at,omitempty"`
	ExportedAt string        `json:"exported_at"`
	Messages   []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Markup    string `json:"markup,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Export converts a transcript to indented JSON. Rich messages keep their
// sanitized text in "text" and the raw markup in "markup".
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	doc := jsonTranscript{
		ChatID:     t.ChatID,
		Title:      t.Title,
		ExportedAt: e.options.now().UTC().Format(time.RFC3339),
		Messages:   make([]jsonMessage, 0, len(t.Messages)),
	}
	if !t.CreatedAt.IsZero() {
		doc.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, m := range t.Messages {
		jm := jsonMessage{
			ID:     m.ID,
			Sender: string(m.Sender),
			Text:   MessageText(m),
			Status: m.Status.String(),
		}
		if m.Rich {
			jm.Markup = m.Text
		}
		if e.options.IncludeTimestamps && !m.CreatedAt.IsZero() {
			jm.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339)
		}
		doc.Messages = append(doc.Messages, jm)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/docchat/internal/timeline"
	"github.com/jeranaias/docchat/internal/util"
)

// ErrUnknownFormat is returned by ForFormat for an unsupported name.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrEmpty is returned when a transcript has no message to export.
var ErrEmpty = errors.New("transcript has no messages")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is one chat as exported. Pending placeholders are exported
// with their status so a half-finished upload is visible.
type Transcript struct {
	ChatID    string
	Title     string
	CreatedAt time.Time
	Messages  []timeline.Message
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for transcript exporters.
type Exporter interface {
	// Export encodes t in the target format.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, dot included.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a header with chat id, title and dates
	IncludeMetadata bool

	// IncludeTimestamps prefixes each message with its local time
	IncludeTimestamps bool

	// Now stamps the export (default: time.Now)
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
		Now:             time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Formats lists the names accepted by ForFormat.
func Formats() []string {
	return []string{"md", "json", "txt"}
}

// ForFormat returns the exporter for name ("md", "markdown", "json",
// "txt" or "text"). A nil opts means DefaultOptions.
func ForFormat(name string, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "txt", "text":
		return NewTextExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
}

// ToFile exports t into path. When path is a directory, or empty for the
// working directory, a file name is derived from the title and the time.
// The file is written atomically with owner-only permissions.
func ToFile(t *Transcript, exporter Exporter, path string, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if path == "" || strings.HasSuffix(path, string(filepath.Separator)) || isDir(path) {
		name := fmt.Sprintf("chat_%s_%s%s",
			sanitizeFilename(t.Title),
			opts.now().Format("20060102_150405"),
			exporter.FileExtension())
		path = filepath.Join(path, name)
	}

	if err := util.AtomicWriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func validate(t *Transcript) error {
	if t == nil {
		return errors.New("transcript is nil")
	}
	if len(t.Messages) == 0 {
		return ErrEmpty
	}
	return nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms and limits the length.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	var b strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func senderLabel(s timeline.Sender) string {
	if s == timeline.SenderUser {
		return "Vous"
	}
	return "Assistant"
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Lipgloss styles for message senders and statuses.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/docchat/internal/timeline"
)

// init configures the lipgloss color profile from terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// UserStyle labels user messages
	UserStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// BotStyle labels assistant messages
	BotStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("141")) // Purple

	// PendingStyle is used for placeholders awaiting a result
	PendingStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("242"))

	// SuccessStyle is used for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	// ErrorStyle is used for error messages and failed entries
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// WarningStyle is used for warnings
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// RenderSeparator renders a horizontal line of the given width (default 60).
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return SeparatorStyle.Render(strings.Repeat("─", width))
}

// RenderStatus renders a short marker for a message status.
// Committed messages have no marker.
func RenderStatus(s timeline.Status) string {
	switch s {
	case timeline.StatusPendingResponse:
		return PendingStyle.Render("[en attente]")
	case timeline.StatusPendingUpload:
		return PendingStyle.Render("[envoi]")
	case timeline.StatusPendingOcr:
		return PendingStyle.Render("[ocr]")
	case timeline.StatusFailed:
		return ErrorStyle.Render("[échec]")
	default:
		return ""
	}
}

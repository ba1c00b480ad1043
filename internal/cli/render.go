// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Terminal rendering of timeline messages.

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/docchat/internal/export"
	"github.com/jeranaias/docchat/internal/timeline"
)

// =============================================================================
// RENDERER
// =============================================================================

// renderer prints timeline snapshots incrementally. A message is printed
// when it first appears and again when its status changes, so a pending
// placeholder shows up once and its resolution once.
type renderer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	shown map[string]timeline.Status
}

func newRenderer(out io.Writer, width int) *renderer {
	return &renderer{
		out:   out,
		width: width,
		shown: make(map[string]timeline.Status),
	}
}

// Render prints what changed since the previous snapshot. A snapshot that
// drops messages means the session was switched; tracking restarts.
func (r *renderer) Render(msgs []timeline.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		present[m.ID] = true
	}
	for id := range r.shown {
		if !present[id] {
			r.shown = make(map[string]timeline.Status)
			break
		}
	}

	for _, m := range msgs {
		if prev, ok := r.shown[m.ID]; ok && prev == m.Status {
			continue
		}
		r.shown[m.ID] = m.Status
		fmt.Fprintln(r.out, r.format(m))
	}
}

// List prints msgs numbered from 1, without touching the tracking state.
func (r *renderer) List(msgs []timeline.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("(conversation vide)"))
		return
	}
	for i, m := range msgs {
		fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render(fmt.Sprintf("%3d", i+1)), r.format(m))
	}
}

// Note prints a status line.
func (r *renderer) Note(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (r *renderer) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, WarningStyle.Render(fmt.Sprintf(format, args...)))
}

func (r *renderer) format(m timeline.Message) string {
	label := BotStyle.Render("bot ›")
	if m.Sender == timeline.SenderUser {
		label = UserStyle.Render("vous ›")
	}

	text := export.MessageText(m)
	if r.width > 0 {
		text = WrapText(text, r.width)
	}
	switch {
	case m.Status.IsPending():
		text = PendingStyle.Render(text)
	case m.Status == timeline.StatusFailed:
		text = ErrorStyle.Render(text)
	}

	line := label + " " + text
	if marker := RenderStatus(m.Status); marker != "" {
		line += " " + marker
	}
	return line
}

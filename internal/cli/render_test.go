// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jeranaias/docchat/internal/timeline"
)

func TestRenderer_PrintsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, 0)

	user := timeline.NewUserMessage("salut")
	pending := timeline.NewBotMessage("Analyse en cours…", false, timeline.StatusPendingOcr)

	r.Render([]timeline.Message{user, pending})
	first := buf.String()
	if strings.Count(first, "\n") != 2 {
		t.Fatalf("first render printed %q, want two lines", first)
	}

	buf.Reset()
	r.Render([]timeline.Message{user, pending})
	if buf.Len() != 0 {
		t.Errorf("unchanged snapshot printed %q", buf.String())
	}

	resolved := pending
	resolved.Text = "texte reconnu"
	resolved.Status = timeline.StatusCommitted
	r.Render([]timeline.Message{user, resolved})
	out := buf.String()
	if !strings.Contains(out, "texte reconnu") || strings.Contains(out, "salut") {
		t.Errorf("status change printed %q, want only the resolved message", out)
	}
}

func TestRenderer_ResetsOnSessionSwitch(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, 0)

	a := timeline.NewUserMessage("ancienne")
	r.Render([]timeline.Message{a})

	buf.Reset()
	b := timeline.NewBotMessage("nouvelle", false, timeline.StatusCommitted)
	r.Render([]timeline.Message{b})
	if !strings.Contains(buf.String(), "nouvelle") {
		t.Errorf("new session printed %q", buf.String())
	}

	buf.Reset()
	r.Render([]timeline.Message{a})
	if !strings.Contains(buf.String(), "ancienne") {
		t.Errorf("returning to a dropped message printed %q, want it again", buf.String())
	}
}

func TestRenderer_List(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, 0)

	r.List(nil)
	if !strings.Contains(buf.String(), "conversation vide") {
		t.Errorf("empty list printed %q", buf.String())
	}

	buf.Reset()
	r.List([]timeline.Message{timeline.NewUserMessage("un"), timeline.NewUserMessage("deux")})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "1") || !strings.Contains(lines[1], "deux") {
		t.Errorf("List printed %q", buf.String())
	}
}

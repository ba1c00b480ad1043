// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/docchat/internal/backend"
	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/history"
	"github.com/jeranaias/docchat/internal/upload"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), ExitInterrupted},
		{"usage", &UsageError{Message: "bad"}, ExitUsageError},
		{"config", config.ValidateErrors{{Field: "backend.base_url", Message: "empty"}}, ExitConfigError},
		{"no user", errNoUser, ExitAuthError},
		{"history identity", history.ErrNoIdentity, ExitAuthError},
		{"upload identity", upload.ErrNoIdentity, ExitAuthError},
		{"ocr timeout", fmt.Errorf("scan.pdf: %w", upload.ErrTimedOut), ExitTimeoutError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"not found", &CommandError{Command: "chat", Reason: "open", Err: backend.ErrNotFound}, ExitNotFoundError},
		{"unavailable", backend.ErrUnavailable, ExitNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("refused")
	err := &CommandError{Command: "chats purge", Reason: "delete failed", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("CommandError does not unwrap")
	}
	if got := err.Error(); got != "chats purge: delete failed: refused" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&CommandError{Command: "x", Reason: "y"}).Error(); got != "x: y" {
		t.Errorf("Error() without cause = %q", got)
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("nil error printed %q", buf.String())
	}

	DisplayError(&buf, errors.New("service down"))
	if !strings.Contains(buf.String(), "service down") {
		t.Errorf("DisplayError printed %q", buf.String())
	}

	buf.Reset()
	DisplayError(&buf, context.Canceled)
	if !strings.Contains(buf.String(), "Interrompu") {
		t.Errorf("canceled printed %q", buf.String())
	}
}

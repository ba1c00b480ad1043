// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepgram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
)

// AudioSource captures one utterance. Capture returns the audio and its
// content type; ctx cancellation aborts the capture.
type AudioSource interface {
	Capture(ctx context.Context) (io.ReadCloser, string, error)
}

// FileSource replays a recorded file.
type FileSource struct {
	Path string
}

// Capture implements AudioSource.
func (f FileSource) Capture(ctx context.Context) (io.ReadCloser, string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(filepath.Ext(f.Path))
	if contentType == "" {
		contentType = "audio/wav"
	}
	return file, contentType, nil
}

// CommandSource records with an external command writing audio to stdout,
// for example: arecord -q -f S16_LE -r 16000 -d 6 -t wav -
type CommandSource struct {
	Name        string
	Args        []string
	ContentType string
}

// Capture implements AudioSource. The command runs to completion so the
// whole utterance is sent in one request.
func (c CommandSource) Capture(ctx context.Context) (io.ReadCloser, string, error) {
	if _, err := exec.LookPath(c.Name); err != nil {
		return nil, "", fmt.Errorf("recorder %q: %w", c.Name, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%s: %w: %s", c.Name, err, stderr.String())
	}

	contentType := c.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}
	return io.NopCloser(bytes.NewReader(out)), contentType, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileFromPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		content  []byte
		wantMime string
	}{
		{"scan.pdf", []byte("%PDF-1.7"), "application/pdf"},
		{"photo.JPG", []byte{0xff, 0xd8, 0xff}, "image/jpeg"},
		{"notes.tiff", []byte("II*"), "image/tiff"},
		{"noext", []byte("%PDF-1.4 body"), "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, tt.content, 0o600); err != nil {
				t.Fatal(err)
			}

			f, err := FileFromPath(path)
			if err != nil {
				t.Fatalf("FileFromPath() error = %v", err)
			}
			if f.Name != tt.name {
				t.Errorf("Name = %q, want %q", f.Name, tt.name)
			}
			if f.Size != int64(len(tt.content)) {
				t.Errorf("Size = %d, want %d", f.Size, len(tt.content))
			}
			if f.MimeType != tt.wantMime {
				t.Errorf("MimeType = %q, want %q", f.MimeType, tt.wantMime)
			}

			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			if string(data) != string(tt.content) {
				t.Errorf("content = %q", data)
			}
		})
	}
}

func TestFileFromPath_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := FileFromPath(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := FileFromPath(dir); err == nil {
		t.Error("expected error for a directory")
	}
}

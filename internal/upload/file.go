// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// File describes a document selected for upload.
type File struct {
	// Name is the base file name shown in the timeline
	Name string

	// Size in bytes
	Size int64

	// MimeType sent with the multipart part
	MimeType string

	// Open returns a fresh reader over the file content
	Open func() (io.ReadCloser, error)
}

var mimeFallbacks = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// FileFromPath builds a File for a regular file on disk.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s is not a regular file", path)
	}

	mimeType := mimeTypeForPath(path)
	if mimeType == "" {
		mimeType = sniffMimeType(path)
	}

	return File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FileFromBytes builds a File over an in-memory document.
func FileFromBytes(name string, data []byte) File {
	mimeType := mimeTypeForPath(name)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return File{
		Name:     filepath.Base(name),
		Size:     int64(len(data)),
		MimeType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// mimeTypeForPath returns the type registered for the extension, or "".
func mimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = mimeFallbacks[ext]
	}
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}

func sniffMimeType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	return http.DetectContentType(head[:n])
}

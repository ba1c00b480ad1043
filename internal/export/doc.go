// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat transcripts to Markdown, JSON or plain text.
//
// Assistant markup is sanitized and flattened before it reaches any
// output, so an export never carries active HTML.
//
// # Key Types
//
//   - Transcript: A chat and its messages, ready to export
//   - Exporter: Format-specific encoder
//   - Options: Metadata and timestamp switches
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(transcript, exp, ".")
package export

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by docchat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync and rename
//   - Truncate: Rune-aware truncation with an ellipsis for terminal lists
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	title := util.Truncate(chat.Title, 40)
package util

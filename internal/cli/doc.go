// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the docchat command line.
//
// The package is a thin shell: it wires the workflow packages together
// (backend, timeline, upload, history, speech, inbox) and renders the
// timeline in the terminal. No workflow decision is taken here.
//
// # Key Types
//
//   - App: The wired components of one run
//   - renderer: Incremental timeline printer with sanitized markup
//
// # Commands
//
//   - chat: Interactive REPL (default)
//   - chats list | export | purge: Past conversations
//   - upload <file>...: One-shot OCR upload
//   - watch <dir>: Upload files dropped into a directory
//   - config show | init | path: Configuration helpers
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
package cli

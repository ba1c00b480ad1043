// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload drives the document ingestion workflow.
//
// Every file goes through the same strict sequence: resolve (or create) the
// chat session, append a provenance message, append one OCR placeholder,
// upload the bytes, then poll for the OCR result with a bounded fixed-delay
// retry. The placeholder is resolved exactly once, whatever the outcome.
//
// # Key Types
//
//   - Engine: Runs upload tasks and tracks background submissions
//   - Task: Per-file workflow state (uploading, polling, terminal)
//   - File: Descriptor of the document to upload
//   - Hooks: Shell callbacks for the busy indicator and input reset
//
// # Usage
//
//	engine := upload.NewEngine(client, ctrl, upload.DefaultConfig(),
//	    upload.WithLogger(logger))
//
//	f, err := upload.FileFromPath("scan.pdf")
//	task, err := engine.Run(ctx, f)
//	fmt.Println(task.Summary())
//
// Background submission from the REPL or the inbox watcher:
//
//	engine.Submit(ctx, f)
//	defer engine.Wait()
package upload

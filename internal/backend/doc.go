// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the typed HTTP client for the remote chat service.
//
// The client is a pure I/O boundary: it turns requests into HTTP calls and
// responses into Go values, surfacing failures as *ClientError. It carries no
// retry or interpretation policy beyond classifying the OCR "not ready yet"
// answer as ErrNotReady so callers can poll.
//
// # Key Types
//
//   - Client: HTTP client for the chat service
//   - ClientConfig: base URL, timeouts, client-side rate limit
//   - RemoteMessage, ChatHistory: wire shapes of the service
//   - ClientError: categorized error with ErrorType
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.ClientConfig{
//	    BaseURL: "http://127.0.0.1:5000",
//	})
//	resp, err := client.SendMessage(ctx, backend.SendRequest{
//	    UserInput: "Bonjour",
//	    UserID:    "user_123",
//	})
//
// Poll an OCR result:
//
//	text, err := client.FetchOCRResult(ctx, fileID)
//	if errors.Is(err, backend.ErrNotReady) {
//	    // try again later
//	}
package backend

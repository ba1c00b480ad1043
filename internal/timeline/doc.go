// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package timeline owns the ordered message list of the active chat session.
//
// The Controller is the single writer of the timeline. User messages are
// appended optimistically before any network round trip and are never
// replaced; bot messages may start as pending placeholders that are later
// resolved in place to exactly one terminal message.
//
// Every request captures the session Generation at issue time. Switching or
// resetting the session bumps the generation, so late responses for an
// abandoned session are discarded instead of leaking into the new one.
//
// # Key Types
//
//   - Controller: Message list, pending input buffer and session state
//   - Session: Active chat id plus its generation counter
//   - Message: One timeline entry with sender and status
//   - Placeholder: Handle to a pending bot message, used by Resolve
//
// # Usage
//
//	ctrl := timeline.New(client, identity.Static("user-42"), timeline.WithLogger(logger))
//
//	updates, cancel := ctrl.Subscribe()
//	defer cancel()
//
//	ctrl.SetInput("Bonjour")
//	bot, err := ctrl.Submit(ctx)
//
// Workflow components write through the session-checked operations:
//
//	sess, err := ctrl.EnsureSession(ctx, createChat)
//	ph, err := ctrl.AppendPlaceholder(sess, timeline.StatusPendingOcr, "...")
//	_, err = ctrl.Resolve(ph, timeline.NewBotMessage(text, false, timeline.StatusCommitted))
package timeline

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package timeline

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER & STATUS
// =============================================================================

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser marks text typed (or dictated) by the user
	SenderUser Sender = "user"

	// SenderBot marks assistant output and workflow status messages
	SenderBot Sender = "bot"
)

// ParseSender maps a backend sender string onto a Sender.
// Anything that is not the user is treated as the assistant.
func ParseSender(s string) Sender {
	if s == string(SenderUser) {
		return SenderUser
	}
	return SenderBot
}

// Status is the lifecycle state of a timeline message.
type Status string

const (
	// StatusCommitted is a final message
	StatusCommitted Status = "committed"

	// StatusPendingResponse waits for the assistant reply
	StatusPendingResponse Status = "pendingResponse"

	// StatusPendingUpload waits for a file transfer
	StatusPendingUpload Status = "pendingUpload"

	// StatusPendingOcr waits for document processing
	StatusPendingOcr Status = "pendingOcr"

	// StatusFailed is a final error message; it is never retried automatically
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsPending reports whether s is a placeholder status.
func (s Status) IsPending() bool {
	switch s {
	case StatusPendingResponse, StatusPendingUpload, StatusPendingOcr:
		return true
	default:
		return false
	}
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one entry of the timeline.
type Message struct {
	// ID is a client-side identifier, stable across placeholder resolution
	ID string

	// Text is the displayed content
	Text string

	// Sender is the author
	Sender Sender

	// Rich marks sanitized assistant markup, as opposed to plain text
	Rich bool

	// Status is the lifecycle state
	Status Status

	// CreatedAt is when the entry first appeared in the timeline
	CreatedAt time.Time
}

// NewUserMessage returns a committed user message.
func NewUserMessage(text string) Message {
	return Message{
		ID:     newID(),
		Text:   text,
		Sender: SenderUser,
		Status: StatusCommitted,
	}
}

// NewBotMessage returns a bot message with the given status.
func NewBotMessage(text string, rich bool, status Status) Message {
	return Message{
		ID:     newID(),
		Text:   text,
		Sender: SenderBot,
		Rich:   rich,
		Status: status,
	}
}

// Session is the active chat session as seen by a request at issue time.
type Session struct {
	// ID is the backend chat id; empty until the first send or upload binds it
	ID string

	// Generation increases on every chat switch or reset
	Generation uint64
}

// Bound reports whether the session has a chat id.
func (s Session) Bound() bool {
	return s.ID != ""
}

// Placeholder is a handle to a pending bot message.
type Placeholder struct {
	ID         string
	Generation uint64
}

func newID() string {
	return uuid.NewString()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import "io"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SendRequest is the body of POST /messages.
// An empty ChatID is sent as null so the service allocates a new chat.
type SendRequest struct {
	UserInput string
	UserID    string
	ChatID    string
}

// sendWire is the JSON shape of SendRequest.
type sendWire struct {
	UserInput string  `json:"user_input"`
	UserID    string  `json:"user_id"`
	ChatID    *string `json:"chat_id"`
}

// createChatWire is the body of POST /chat-histories.
type createChatWire struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// UploadRequest describes a multipart file upload to POST /uploadFile.
type UploadRequest struct {
	FileName    string
	ContentType string
	Content     io.Reader
	UserID      string
	ChatID      string
}

// BotMessage is a bot-authored message recorded on the service.
type BotMessage struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RemoteMessage is a message as stored by the service.
type RemoteMessage struct {
	Text   string `json:"text"`
	Sender string `json:"sender"` // "user" or "bot"
	IsHTML bool   `json:"isHtml,omitempty"`
}

// messagesResponse is the body of GET /messages/{chatId}.
type messagesResponse struct {
	Messages []RemoteMessage `json:"messages"`
}

// SendResponse is the body returned by POST /messages.
type SendResponse struct {
	Response string `json:"response"`
	ChatID   string `json:"chat_id"`
}

// createChatResponse is the body returned by POST /chat-histories.
type createChatResponse struct {
	ChatID string `json:"chat_id"`
}

// ChatHistory is one entry of GET /chat-histories/{userId}.
type ChatHistory struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
}

// uploadResponse is the body returned by POST /uploadFile.
// Services that expose a dedicated id send file_id; otherwise the file URL
// doubles as the OCR lookup key.
type uploadResponse struct {
	FileURL string `json:"fileUrl"`
	FileID  string `json:"file_id,omitempty"`
}

// ocrResponse is the body returned by GET /GetOCRResult.
type ocrResponse struct {
	Text string `json:"text"`
}

// errorResponse is the error envelope returned by the service on failure.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

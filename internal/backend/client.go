// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat service client.
type ClientError struct {
	Type    ErrorType
	Message string
	Status  int
	Cause   error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *ClientError of the same Type, so the
// sentinels below match any error of their category.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeNotFound
	ErrTypeNotReady
	ErrTypeInvalidRequest
	ErrTypeServer
	ErrTypeInvalidResponse
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeNotFound:
		return "not_found"
	case ErrTypeNotReady:
		return "not_ready"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeServer:
		return "server"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking with errors.Is.
var (
	ErrUnavailable = &ClientError{Type: ErrTypeConnection, Message: "chat service unreachable"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNotFound    = &ClientError{Type: ErrTypeNotFound, Message: "resource not found"}
	// ErrNotReady is returned by FetchOCRResult while the service is still
	// processing the document.
	ErrNotReady = &ClientError{Type: ErrTypeNotReady, Message: "OCR result not ready"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const (
	// MaxResponseSize is the maximum accepted response body size.
	MaxResponseSize = 10 * 1024 * 1024

	defaultBaseURL          = "http://127.0.0.1:5000"
	defaultTimeout          = 30 * time.Second
	defaultRequestsPerSec   = 10
	defaultBurst            = 20
	defaultPropagationDelay = 500 * time.Millisecond
	userAgent               = "docchat/0.1"
)

// ClientConfig holds configuration options for the chat service client.
type ClientConfig struct {
	// BaseURL is the service base URL (default: http://127.0.0.1:5000)
	BaseURL string

	// Timeout for each request (default: 30s)
	Timeout time.Duration

	// RequestsPerSecond is the client-side rate limit (default: 10)
	RequestsPerSecond float64

	// Burst is the rate limiter bucket size (default: 20)
	Burst int

	// PropagationDelay is waited after deleting chat histories so a following
	// list call observes the deletion (default: 500ms)
	PropagationDelay time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           defaultBaseURL,
		Timeout:           defaultTimeout,
		RequestsPerSecond: defaultRequestsPerSec,
		Burst:             defaultBurst,
		PropagationDelay:  defaultPropagationDelay,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat service.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new client with default configuration.
func NewClient(opts ...Option) *Client {
	return NewClientWithConfig(DefaultConfig(), opts...)
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig, opts ...Option) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// Fill in defaults for any zero values
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.PropagationDelay < 0 {
		cfg.PropagationDelay = 0
	}

	c := &Client{
		config:     &cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// MESSAGES
// =============================================================================

// FetchMessages returns the ordered message list of a chat.
func (c *Client) FetchMessages(ctx context.Context, chatID string) ([]RemoteMessage, error) {
	var result messagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(chatID), nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage posts a user message and returns the assistant reply together
// with the chat id the service attached it to.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*SendResponse, error) {
	wire := sendWire{UserInput: req.UserInput, UserID: req.UserID}
	if req.ChatID != "" {
		chatID := req.ChatID
		wire.ChatID = &chatID
	}

	var result SendResponse
	if err := c.doJSON(ctx, http.MethodPost, "/messages", wire, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordBotMessage stores a bot-authored message (e.g. an OCR result) in a chat.
func (c *Client) RecordBotMessage(ctx context.Context, msg BotMessage) error {
	return c.doJSON(ctx, http.MethodPost, "/messages/bot", msg, nil)
}

// =============================================================================
// CHAT HISTORIES
// =============================================================================

// CreateChat creates a chat for the user and returns its id.
func (c *Client) CreateChat(ctx context.Context, userID, title string) (string, error) {
	var result createChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat-histories", createChatWire{UserID: userID, Title: title}, &result); err != nil {
		return "", err
	}
	if result.ChatID == "" {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "create chat returned no chat_id"}
	}
	return result.ChatID, nil
}

// ListChatHistories returns the chats owned by the user.
func (c *Client) ListChatHistories(ctx context.Context, userID string) ([]ChatHistory, error) {
	var result []ChatHistory
	if err := c.doJSON(ctx, http.MethodGet, "/chat-histories/"+url.PathEscape(userID), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteAllChatHistories deletes every chat of the user, then waits the
// configured propagation delay so an immediate re-list sees the deletion.
func (c *Client) DeleteAllChatHistories(ctx context.Context, userID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/chat-histories/"+url.PathEscape(userID)+"/all", nil, nil); err != nil {
		return err
	}
	if c.config.PropagationDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(c.config.PropagationDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// FILES & OCR
// =============================================================================

// UploadFile uploads a document and returns the id the service assigned to it.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (string, error) {
	if req.Content == nil {
		return "", &ClientError{Type: ErrTypeInvalidRequest, Message: "upload has no content"}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.FileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create file part", Cause: err}
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to read file", Cause: err}
	}
	if err := mw.WriteField("user_id", req.UserID); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to write user_id", Cause: err}
	}
	if err := mw.WriteField("chat_id", req.ChatID); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to write chat_id", Cause: err}
	}
	if err := mw.Close(); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to finish multipart body", Cause: err}
	}

	var result uploadResponse
	if err := c.do(ctx, http.MethodPost, "/uploadFile", &body, mw.FormDataContentType(), &result); err != nil {
		return "", err
	}

	fileID := result.FileID
	if fileID == "" {
		fileID = result.FileURL
	}
	if fileID == "" {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "upload returned no file reference"}
	}
	return fileID, nil
}

// FetchOCRResult returns the OCR text of an uploaded file.
// It returns ErrNotReady while the service has no result yet.
func (c *Client) FetchOCRResult(ctx context.Context, fileID string) (string, error) {
	var result ocrResponse
	err := c.doJSON(ctx, http.MethodGet, "/GetOCRResult?id="+url.QueryEscape(fileID), nil, &result)
	if errors.Is(err, ErrNotFound) {
		return "", &ClientError{Type: ErrTypeNotReady, Message: ErrNotReady.Message, Status: http.StatusNotFound}
	}
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// doJSON marshals in (when non-nil) and performs the request.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// do performs a single rate-limited request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ClientError{Type: ErrTypeTimeout, Message: "rate limiter wait aborted", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", req.URL.Path),
			zap.String("request_id", requestID),
			zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
		}
		return &ClientError{Type: ErrTypeConnection, Message: ErrUnavailable.Message, Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	data, err := readResponse(resp)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to read response", Status: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode >= 300 {
		return handleErrorResponse(resp.StatusCode, data)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Status: resp.StatusCode, Cause: err}
	}
	return nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error status into a *ClientError.
func handleErrorResponse(status int, body []byte) error {
	message := http.StatusText(status)
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error != "":
			message = envelope.Error
		case envelope.Message != "":
			message = envelope.Message
		}
	}

	switch {
	case status == http.StatusNotFound:
		return &ClientError{Type: ErrTypeNotFound, Message: message, Status: status}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &ClientError{Type: ErrTypeTimeout, Message: message, Status: status}
	case status >= 500:
		return &ClientError{Type: ErrTypeServer, Message: message, Status: status}
	default:
		return &ClientError{Type: ErrTypeInvalidRequest, Message: message, Status: status}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deepgram implements speech.Recognizer with Deepgram's
// pre-recorded transcription API.
//
// A recognition session captures one utterance from an AudioSource (a
// recording command or a file), posts it to /v1/listen and emits the
// transcript followed by an end event.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/jeranaias/docchat/internal/speech"
)

const (
	// DefaultEndpoint is the Deepgram pre-recorded transcription endpoint
	DefaultEndpoint = "https://api.deepgram.com/v1/listen"

	// DefaultModel is the transcription model
	DefaultModel = "nova-2"

	maxResponseSize = 1 << 20
)

// Config configures the recognizer.
type Config struct {
	APIKey   string
	Endpoint string
	Model    string

	// Timeout bounds the transcription request (default: 30s)
	Timeout time.Duration
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLogger sets the recognizer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recognizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Recognizer) {
		if hc != nil {
			r.http = hc
		}
	}
}

// Recognizer transcribes audio captured from an AudioSource.
type Recognizer struct {
	cfg    Config
	source AudioSource
	http   *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	events    chan speech.RecognitionEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRecognizer creates a recognizer. Without an API key or a source every
// Start returns speech.ErrUnsupported.
func NewRecognizer(cfg Config, source AudioSource, opts ...Option) *Recognizer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	r := &Recognizer{
		cfg:    cfg,
		source: source,
		http:   &http.Client{},
		logger: zap.NewNop(),
		events: make(chan speech.RecognitionEvent, 4),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events implements speech.Recognizer.
func (r *Recognizer) Events() <-chan speech.RecognitionEvent {
	return r.events
}

// Start implements speech.Recognizer. A running session is aborted first.
func (r *Recognizer) Start(ctx context.Context, session uint64, locale string) error {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return fmt.Errorf("%w: no deepgram api key", speech.ErrUnsupported)
	}
	if r.source == nil {
		return fmt.Errorf("%w: no audio source", speech.ErrUnsupported)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return speech.ErrUnsupported
	default:
	}
	if r.cancel != nil {
		r.cancel()
	}
	sessCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)

	go r.listen(sessCtx, cancel, session, Language(locale))
	return nil
}

// Stop implements speech.Recognizer. The aborted session emits no events.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}

// Close aborts any session and closes the event channel.
func (r *Recognizer) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		close(r.done)
		r.mu.Unlock()
		r.wg.Wait()
		close(r.events)
	})
	return nil
}

func (r *Recognizer) listen(ctx context.Context, cancel context.CancelFunc, session uint64, lang string) {
	defer r.wg.Done()
	defer cancel()

	transcript, err := r.recognize(ctx, lang)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if IsAuthError(err) {
			r.logger.Error("deepgram rejected the API key, check speech.deepgram.api_key or DOCCHAT_DEEPGRAM_KEY",
				zap.Uint64("session", session), zap.Error(err))
		} else {
			r.logger.Warn("speech recognition failed", zap.Uint64("session", session), zap.Error(err))
		}
		r.emit(speech.RecognitionEvent{Session: session, Kind: speech.RecognitionError, Err: err})
		return
	}
	if transcript != "" {
		r.emit(speech.RecognitionEvent{Session: session, Kind: speech.RecognitionResult, Transcript: transcript})
	}
	r.emit(speech.RecognitionEvent{Session: session, Kind: speech.RecognitionEnd})
}

func (r *Recognizer) emit(ev speech.RecognitionEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Recognizer) recognize(ctx context.Context, lang string) (string, error) {
	audio, contentType, err := r.source.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("capture audio: %w", err)
	}
	defer audio.Close()

	return r.Transcribe(ctx, audio, contentType, lang)
}

// =============================================================================
// TRANSCRIPTION
// =============================================================================

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe posts audio to the listen endpoint and returns the best
// transcript of the first channel.
func (r *Recognizer) Transcribe(ctx context.Context, audio io.Reader, contentType, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("model", r.cfg.Model)
	q.Set("smart_format", "true")
	if lang != "" {
		q.Set("language", lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint+"?"+q.Encode(), audio)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+r.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if contentType == "" {
		contentType = "audio/wav"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result listenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(result.Results.Channels[0].Alternatives[0].Transcript), nil
}

// StatusError is a non-200 answer from Deepgram.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepgram returned HTTP %d: %s", e.Status, e.Body)
}

// IsAuthError reports whether err is a rejected API key.
func IsAuthError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden)
}

// Language maps a BCP 47 locale such as fr-FR onto Deepgram's language
// parameter (fr). Unparseable locales are passed through.
func Language(locale string) string {
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	base, _ := tag.Base()
	return base.String()
}

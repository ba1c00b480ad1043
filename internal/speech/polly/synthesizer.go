// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package polly implements speech.Synthesizer on Amazon Polly.
//
// Each utterance is synthesized as MP3 and streamed to a Sink (an external
// player process by default). Cancelling an utterance aborts both the
// synthesis request and the playback, and suppresses its end event.
package polly

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/jeranaias/docchat/internal/speech"
)

var (
	// ErrThrottled is returned when Polly rate limits the account
	ErrThrottled = errors.New("polly throttled the request")

	// ErrRejected is returned when Polly refuses the text itself
	ErrRejected = errors.New("polly rejected the text")

	// ErrEmptyAudio is returned when Polly answered without an audio stream
	ErrEmptyAudio = errors.New("polly returned no audio")
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config selects the Polly voice.
type Config struct {
	// Region is the AWS region (default: eu-west-3)
	Region string

	// VoiceID is the Polly voice (default: Lea, French)
	VoiceID string

	// Engine is "neural" or "standard" (default: neural)
	Engine string

	// Timeout bounds the synthesis request, not the playback (default: 15s)
	Timeout time.Duration
}

func (c *Config) setDefaults() {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "eu-west-3"
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = "Lea"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "neural"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the synthesizer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Synthesizer streams Polly speech to a Sink.
type Synthesizer struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger

	mu     sync.Mutex
	client synthClient
	cancel context.CancelFunc

	events    chan speech.PlaybackEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSynthesizer creates a synthesizer whose AWS client is resolved from the
// default credential chain on first use.
func NewSynthesizer(cfg Config, sink Sink, opts ...Option) *Synthesizer {
	return newSynthesizer(cfg, nil, sink, opts...)
}

func newSynthesizer(cfg Config, client synthClient, sink Sink, opts ...Option) *Synthesizer {
	cfg.setDefaults()
	if sink == nil {
		sink = DiscardSink{}
	}
	s := &Synthesizer{
		cfg:    cfg,
		sink:   sink,
		logger: zap.NewNop(),
		client: client,
		events: make(chan speech.PlaybackEvent, 4),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events implements speech.Synthesizer.
func (s *Synthesizer) Events() <-chan speech.PlaybackEvent {
	return s.events
}

// Speak implements speech.Synthesizer. It cancels the current utterance and
// returns once the new one is underway.
func (s *Synthesizer) Speak(ctx context.Context, utterance uint64, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to speak")
	}
	client, err := s.resolveClient(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return speech.ErrUnsupported
	default:
	}
	if s.cancel != nil {
		s.cancel()
	}
	playCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.play(playCtx, cancel, client, utterance, text)
	return nil
}

// Cancel implements speech.Synthesizer.
func (s *Synthesizer) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// Close cancels playback, waits for it to stop and closes the event channel.
func (s *Synthesizer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		close(s.done)
		s.mu.Unlock()
		s.wg.Wait()
		close(s.events)
	})
	return nil
}

func (s *Synthesizer) play(ctx context.Context, cancel context.CancelFunc, client synthClient, utterance uint64, text string) {
	defer s.wg.Done()
	defer cancel()

	err := s.synthesizeAndPlay(ctx, client, text)
	if ctx.Err() != nil {
		// Cancelled utterances end silently.
		return
	}

	ev := speech.PlaybackEvent{Utterance: utterance, Kind: speech.PlaybackEnd}
	if err != nil {
		s.logger.Warn("polly playback failed", zap.Uint64("utterance", utterance), zap.Error(err))
		ev.Kind = speech.PlaybackError
		ev.Err = err
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Synthesizer) synthesizeAndPlay(ctx context.Context, client synthClient, text string) error {
	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out, err := client.SynthesizeSpeech(reqCtx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.cfg.VoiceID),
	})
	if err != nil {
		return normalizeError(err)
	}
	if out == nil || out.AudioStream == nil {
		return ErrEmptyAudio
	}
	defer out.AudioStream.Close()

	if err := s.sink.Play(ctx, out.AudioStream); err != nil {
		return fmt.Errorf("play audio: %w", err)
	}
	return nil
}

func (s *Synthesizer) resolveClient(ctx context.Context) (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", speech.ErrUnsupported, err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}

func normalizeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("synthesize speech: %w", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return fmt.Errorf("%w: %s", ErrRejected, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("synthesize speech: %w", err)
}

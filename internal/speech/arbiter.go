// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLocale sets the recognition locale (default: fr-FR).
func WithLocale(locale string) Option {
	return func(a *Arbiter) {
		if locale != "" {
			a.locale = locale
		}
	}
}

// WithLogger sets the arbiter logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Arbiter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStateHook is called with the new state after every transition.
func WithStateHook(fn func(State)) Option {
	return func(a *Arbiter) {
		a.onChange = fn
	}
}

// =============================================================================
// ARBITER
// =============================================================================

// Arbiter serializes access to the recognizer and the synthesizer.
//
// User intents (ToggleListening, Speak) are serialized by opMu, which is the
// only lock held while calling the host. Run only takes mu, so host events
// can always be drained.
type Arbiter struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	sink        InputSink
	locale      string
	logger      *zap.Logger
	onChange    func(State)

	opMu sync.Mutex

	mu        sync.Mutex
	mode      Mode
	active    string
	session   uint64
	utterance uint64
	recOff    bool
	synOff    bool
	recWarned bool
	synWarned bool
}

// NewArbiter creates an idle arbiter. recognizer or synthesizer may be nil
// when the host lacks the capability.
func NewArbiter(recognizer Recognizer, synthesizer Synthesizer, sink InputSink, opts ...Option) *Arbiter {
	a := &Arbiter{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		sink:        sink,
		locale:      DefaultLocale,
		logger:      zap.NewNop(),
		mode:        ModeIdle,
		recOff:      recognizer == nil,
		synOff:      synthesizer == nil,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{Mode: a.mode, Active: a.active}
}

// Locale returns the recognition locale.
func (a *Arbiter) Locale() string {
	return a.locale
}

// ToggleListening stops recognition when listening. Otherwise it cancels
// any speech output and starts recognition.
func (a *Arbiter) ToggleListening(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.recOff {
		a.warnLocked(&a.recWarned, "speech recognition")
		a.mu.Unlock()
		return ErrUnsupported
	}
	mode := a.mode
	a.mu.Unlock()

	switch mode {
	case ModeListening:
		a.setState(ModeIdle, "")
		if err := a.recognizer.Stop(); err != nil {
			a.logger.Warn("stop recognition failed", zap.Error(err))
		}
		a.cancelSpeech()
		return nil
	case ModeSpeaking:
		a.setState(ModeIdle, "")
		a.cancelSpeech()
	}

	a.mu.Lock()
	a.session++
	session := a.session
	a.mode = ModeListening
	a.active = ""
	a.mu.Unlock()

	if err := a.recognizer.Start(ctx, session, a.locale); err != nil {
		a.mu.Lock()
		if errors.Is(err, ErrUnsupported) {
			a.recOff = true
			a.warnLocked(&a.recWarned, "speech recognition")
		}
		a.mu.Unlock()
		a.setState(ModeIdle, "")
		if errors.Is(err, ErrUnsupported) {
			return ErrUnsupported
		}
		return fmt.Errorf("start recognition: %w", err)
	}
	a.notify()
	return nil
}

// Speak reads text aloud as utterance id. Calling it again with the id that
// is being read stops playback instead of restarting it.
func (a *Arbiter) Speak(ctx context.Context, text, id string) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.synOff {
		a.warnLocked(&a.synWarned, "speech synthesis")
		a.mu.Unlock()
		return ErrUnsupported
	}
	mode, active := a.mode, a.active
	a.mu.Unlock()

	switch mode {
	case ModeSpeaking:
		a.cancelSpeech()
		if active == id {
			a.setState(ModeIdle, "")
			return nil
		}
	case ModeListening:
		if err := a.recognizer.Stop(); err != nil {
			a.logger.Warn("stop recognition failed", zap.Error(err))
		}
	}

	a.mu.Lock()
	a.utterance++
	utterance := a.utterance
	a.mode = ModeSpeaking
	a.active = id
	a.mu.Unlock()

	if err := a.synthesizer.Speak(ctx, utterance, text); err != nil {
		a.mu.Lock()
		if errors.Is(err, ErrUnsupported) {
			a.synOff = true
			a.warnLocked(&a.synWarned, "speech synthesis")
		}
		a.mu.Unlock()
		a.setState(ModeIdle, "")
		if errors.Is(err, ErrUnsupported) {
			return ErrUnsupported
		}
		return fmt.Errorf("start speech: %w", err)
	}
	a.notify()
	return nil
}

// Run consumes host events until ctx is done. It must be the only consumer
// of the recognizer and synthesizer event channels.
func (a *Arbiter) Run(ctx context.Context) error {
	var recEvents <-chan RecognitionEvent
	if a.recognizer != nil {
		recEvents = a.recognizer.Events()
	}
	var synEvents <-chan PlaybackEvent
	if a.synthesizer != nil {
		synEvents = a.synthesizer.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-recEvents:
			if !ok {
				recEvents = nil
				continue
			}
			a.handleRecognition(ev)

		case ev, ok := <-synEvents:
			if !ok {
				synEvents = nil
				continue
			}
			a.handlePlayback(ev)
		}
	}
}

func (a *Arbiter) handleRecognition(ev RecognitionEvent) {
	a.mu.Lock()
	current := a.mode == ModeListening && ev.Session == a.session
	if current && ev.Kind != RecognitionResult {
		a.mode = ModeIdle
	}
	a.mu.Unlock()

	if !current {
		return
	}

	switch ev.Kind {
	case RecognitionResult:
		if a.sink != nil {
			a.sink.SetInput(ev.Transcript)
		}
	case RecognitionError:
		a.logger.Warn("speech recognition error", zap.Error(ev.Err))
		a.notify()
	case RecognitionEnd:
		a.notify()
	}
}

func (a *Arbiter) handlePlayback(ev PlaybackEvent) {
	a.mu.Lock()
	current := a.mode == ModeSpeaking && ev.Utterance == a.utterance
	if current {
		a.mode = ModeIdle
		a.active = ""
	}
	a.mu.Unlock()

	if !current {
		return
	}
	if ev.Kind == PlaybackError {
		a.logger.Warn("speech playback error", zap.Error(ev.Err))
	}
	a.notify()
}

// cancelSpeech stops any output. Called with opMu held.
func (a *Arbiter) cancelSpeech() {
	if a.synthesizer == nil {
		return
	}
	if err := a.synthesizer.Cancel(); err != nil {
		a.logger.Warn("cancel speech failed", zap.Error(err))
	}
}

func (a *Arbiter) setState(mode Mode, active string) {
	a.mu.Lock()
	a.mode = mode
	a.active = active
	a.mu.Unlock()
	a.notify()
}

func (a *Arbiter) notify() {
	if a.onChange != nil {
		a.onChange(a.State())
	}
}

// warnLocked logs a missing capability once.
func (a *Arbiter) warnLocked(warned *bool, capability string) {
	if *warned {
		return
	}
	*warned = true
	a.logger.Warn("capability unavailable, feature disabled", zap.String("capability", capability))
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
)

// ErrUnsupported reports that the host lacks a speech capability.
var ErrUnsupported = errors.New("speech capability not supported on this host")

// DefaultLocale is the recognition locale used when none is configured.
const DefaultLocale = "fr-FR"

// Mode is the arbiter state.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// State is a snapshot of the arbiter.
type State struct {
	Mode Mode

	// Active is the identity of the utterance being read; empty unless speaking
	Active string
}

// =============================================================================
// HOST CAPABILITIES
// =============================================================================

// RecognitionKind classifies recognition events.
type RecognitionKind int

const (
	// RecognitionResult carries a transcript
	RecognitionResult RecognitionKind = iota

	// RecognitionError ends the session with an error
	RecognitionError

	// RecognitionEnd ends the session normally
	RecognitionEnd
)

// RecognitionEvent is emitted by a Recognizer.
type RecognitionEvent struct {
	Session    uint64
	Kind       RecognitionKind
	Transcript string
	Err        error
}

// Recognizer is a speech-to-text capability.
//
// Start and Stop must return without waiting for events to be consumed.
// A Recognizer that cannot run on this host returns ErrUnsupported from Start.
type Recognizer interface {
	Start(ctx context.Context, session uint64, locale string) error
	Stop() error
	Events() <-chan RecognitionEvent
}

// PlaybackKind classifies playback events.
type PlaybackKind int

const (
	// PlaybackEnd reports the natural end of an utterance
	PlaybackEnd PlaybackKind = iota

	// PlaybackError reports a failed utterance
	PlaybackError
)

// PlaybackEvent is emitted by a Synthesizer.
type PlaybackEvent struct {
	Utterance uint64
	Kind      PlaybackKind
	Err       error
}

// Synthesizer is a text-to-speech capability.
//
// Speak and Cancel must return without waiting for events to be consumed.
// A cancelled utterance may or may not emit an event.
type Synthesizer interface {
	Speak(ctx context.Context, utterance uint64, text string) error
	Cancel() error
	Events() <-chan PlaybackEvent
}

// InputSink receives transcripts. The text replaces the pending input.
type InputSink interface {
	SetInput(text string)
}

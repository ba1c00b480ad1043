// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package speech arbitrates the microphone and the speaker.
//
// Speech recognition and speech synthesis cannot run at the same time on a
// typical host. The Arbiter owns the single speech state and enforces mutual
// exclusion at entry: starting one mode cancels the other, nothing blocks.
//
// Host capabilities are modeled as event-driven interfaces. Start/Stop style
// methods return immediately and progress is reported on an event channel
// consumed by Arbiter.Run, the single subscriber. Every session or
// utterance carries a token so that events of a cancelled one are ignored.
//
// # Key Types
//
//   - Arbiter: Owns the speech state (idle, listening, speaking)
//   - Recognizer: Host speech-to-text capability
//   - Synthesizer: Host text-to-speech capability
//   - InputSink: Receives transcripts (the timeline input buffer)
//
// # Usage
//
//	arb := speech.NewArbiter(recognizer, synthesizer, ctrl,
//	    speech.WithLocale("fr-FR"), speech.WithLogger(logger))
//	go arb.Run(ctx)
//
//	arb.ToggleListening(ctx)            // start dictation
//	arb.Speak(ctx, msg.Text, msg.ID)    // read a message aloud
//	arb.Speak(ctx, msg.Text, msg.ID)    // same id again: stop
package speech

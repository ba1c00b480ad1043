// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FAKES
// =============================================================================

// callLog records host calls in order across both fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeRecognizer struct {
	log      *callLog
	events   chan RecognitionEvent
	startErr error
	session  uint64
	locale   string
}

func newFakeRecognizer(log *callLog) *fakeRecognizer {
	return &fakeRecognizer{log: log, events: make(chan RecognitionEvent, 8)}
}

func (r *fakeRecognizer) Start(ctx context.Context, session uint64, locale string) error {
	r.log.add("rec.start")
	r.session = session
	r.locale = locale
	return r.startErr
}

func (r *fakeRecognizer) Stop() error {
	r.log.add("rec.stop")
	return nil
}

func (r *fakeRecognizer) Events() <-chan RecognitionEvent { return r.events }

type fakeSynthesizer struct {
	log       *callLog
	events    chan PlaybackEvent
	speakErr  error
	utterance uint64
	texts     []string
}

func newFakeSynthesizer(log *callLog) *fakeSynthesizer {
	return &fakeSynthesizer{log: log, events: make(chan PlaybackEvent, 8)}
}

func (s *fakeSynthesizer) Speak(ctx context.Context, utterance uint64, text string) error {
	s.log.add("syn.speak")
	s.utterance = utterance
	s.texts = append(s.texts, text)
	return s.speakErr
}

func (s *fakeSynthesizer) Cancel() error {
	s.log.add("syn.cancel")
	return nil
}

func (s *fakeSynthesizer) Events() <-chan PlaybackEvent { return s.events }

type inputBuffer struct {
	mu   sync.Mutex
	text string
	sets int
}

func (b *inputBuffer) SetInput(text string) {
	b.mu.Lock()
	b.text = text
	b.sets++
	b.mu.Unlock()
}

func (b *inputBuffer) get() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, b.sets
}

// runArbiter starts Run and returns a stop function that waits for it.
func runArbiter(t *testing.T, a *Arbiter) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// =============================================================================
// MUTUAL EXCLUSION
// =============================================================================

func TestSpeakWhileListening(t *testing.T) {
	log := &callLog{}
	rec, syn := newFakeRecognizer(log), newFakeSynthesizer(log)
	a := NewArbiter(rec, syn, &inputBuffer{})
	ctx := context.Background()

	if err := a.ToggleListening(ctx); err != nil {
		t.Fatalf("ToggleListening() error = %v", err)
	}
	if got := a.State().Mode; got != ModeListening {
		t.Fatalf("Mode = %v, want listening", got)
	}

	if err := a.Speak(ctx, "bonjour", "2"); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"rec.start", "rec.stop", "syn.speak"}
	if diff := cmp.Diff(want, log.get()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(State{Mode: ModeSpeaking, Active: "2"}, a.State()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestListenWhileSpeaking(t *testing.T) {
	log := &callLog{}
	rec, syn := newFakeRecognizer(log), newFakeSynthesizer(log)
	a := NewArbiter(rec, syn, &inputBuffer{})
	ctx := context.Background()

	if err := a.Speak(ctx, "bonjour", "1"); err != nil {
		t.Fatal(err)
	}
	if err := a.ToggleListening(ctx); err != nil {
		t.Fatalf("ToggleListening() error = %v", err)
	}

	want := []string{"syn.speak", "syn.cancel", "rec.start"}
	if diff := cmp.Diff(want, log.get()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(State{Mode: ModeListening}, a.State()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if rec.locale != DefaultLocale {
		t.Errorf("locale = %q, want %q", rec.locale, DefaultLocale)
	}
}

func TestToggleListeningStops(t *testing.T) {
	log := &callLog{}
	a := NewArbiter(newFakeRecognizer(log), newFakeSynthesizer(log), &inputBuffer{}, WithLocale("en-US"))
	ctx := context.Background()

	a.ToggleListening(ctx)
	if err := a.ToggleListening(ctx); err != nil {
		t.Fatalf("ToggleListening() error = %v", err)
	}

	want := []string{"rec.start", "rec.stop", "syn.cancel"}
	if diff := cmp.Diff(want, log.get()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
	if a.State().Mode != ModeIdle {
		t.Errorf("Mode = %v, want idle", a.State().Mode)
	}
	if a.Locale() != "en-US" {
		t.Errorf("Locale() = %q", a.Locale())
	}
}

// =============================================================================
// SPEAK TOGGLE
// =============================================================================

func TestSpeakSameIDToggles(t *testing.T) {
	log := &callLog{}
	syn := newFakeSynthesizer(log)
	a := NewArbiter(nil, syn, nil)
	ctx := context.Background()

	a.Speak(ctx, "texte", "7")
	if err := a.Speak(ctx, "texte", "7"); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"syn.speak", "syn.cancel"}
	if diff := cmp.Diff(want, log.get()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(State{Mode: ModeIdle}, a.State()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeakOtherIDSwitches(t *testing.T) {
	log := &callLog{}
	syn := newFakeSynthesizer(log)
	a := NewArbiter(nil, syn, nil)
	ctx := context.Background()

	a.Speak(ctx, "premier", "1")
	if err := a.Speak(ctx, "second", "2"); err != nil {
		t.Fatal(err)
	}

	want := []string{"syn.speak", "syn.cancel", "syn.speak"}
	if diff := cmp.Diff(want, log.get()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"premier", "second"}, syn.texts); diff != "" {
		t.Errorf("spoken texts mismatch (-want +got):\n%s", diff)
	}
	if a.State().Active != "2" {
		t.Errorf("Active = %q, want 2", a.State().Active)
	}
}

// =============================================================================
// HOST EVENTS
// =============================================================================

func TestRun_TranscriptReplacesInput(t *testing.T) {
	log := &callLog{}
	rec := newFakeRecognizer(log)
	input := &inputBuffer{text: "ancien brouillon"}
	a := NewArbiter(rec, nil, input)
	stop := runArbiter(t, a)
	defer stop()

	a.ToggleListening(context.Background())
	rec.events <- RecognitionEvent{Session: rec.session, Kind: RecognitionResult, Transcript: "bonjour le monde"}
	rec.events <- RecognitionEvent{Session: rec.session, Kind: RecognitionEnd}

	waitFor(t, "idle", func() bool { return a.State().Mode == ModeIdle })
	if text, _ := input.get(); text != "bonjour le monde" {
		t.Errorf("input = %q, want transcript", text)
	}
}

func TestRun_RecognitionErrorReturnsIdle(t *testing.T) {
	log := &callLog{}
	rec := newFakeRecognizer(log)
	a := NewArbiter(rec, nil, &inputBuffer{})
	stop := runArbiter(t, a)
	defer stop()

	a.ToggleListening(context.Background())
	rec.events <- RecognitionEvent{Session: rec.session, Kind: RecognitionError, Err: errors.New("no-speech")}

	waitFor(t, "idle", func() bool { return a.State().Mode == ModeIdle })
}

func TestRun_StaleRecognitionIgnored(t *testing.T) {
	log := &callLog{}
	rec := newFakeRecognizer(log)
	input := &inputBuffer{}
	a := NewArbiter(rec, nil, input)
	stop := runArbiter(t, a)
	defer stop()
	ctx := context.Background()

	a.ToggleListening(ctx)
	old := rec.session
	a.ToggleListening(ctx)
	a.ToggleListening(ctx)

	rec.events <- RecognitionEvent{Session: old, Kind: RecognitionResult, Transcript: "stale"}
	rec.events <- RecognitionEvent{Session: old, Kind: RecognitionEnd}
	rec.events <- RecognitionEvent{Session: rec.session, Kind: RecognitionResult, Transcript: "fresh"}

	waitFor(t, "fresh transcript", func() bool { text, _ := input.get(); return text == "fresh" })
	if _, sets := input.get(); sets != 1 {
		t.Errorf("SetInput calls = %d, want 1", sets)
	}
	if a.State().Mode != ModeListening {
		t.Errorf("Mode = %v, stale end must not stop the new session", a.State().Mode)
	}
}

func TestRun_PlaybackEndOfCancelledUtteranceIgnored(t *testing.T) {
	log := &callLog{}
	syn := newFakeSynthesizer(log)
	a := NewArbiter(nil, syn, nil)
	stop := runArbiter(t, a)
	defer stop()
	ctx := context.Background()

	a.Speak(ctx, "un", "1")
	first := syn.utterance
	a.Speak(ctx, "deux", "2")
	second := syn.utterance

	syn.events <- PlaybackEvent{Utterance: first, Kind: PlaybackEnd}
	syn.events <- PlaybackEvent{Utterance: second + 100, Kind: PlaybackError}

	time.Sleep(20 * time.Millisecond)
	if diff := cmp.Diff(State{Mode: ModeSpeaking, Active: "2"}, a.State()); diff != "" {
		t.Fatalf("stale end changed state (-want +got):\n%s", diff)
	}

	syn.events <- PlaybackEvent{Utterance: second, Kind: PlaybackEnd}
	waitFor(t, "idle", func() bool { return a.State() == State{Mode: ModeIdle} })
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a := NewArbiter(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// UNSUPPORTED HOST
// =============================================================================

func TestUnsupportedReportedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := NewArbiter(nil, nil, nil, WithLogger(zap.New(core)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := a.ToggleListening(ctx); !errors.Is(err, ErrUnsupported) {
			t.Errorf("ToggleListening() error = %v, want ErrUnsupported", err)
		}
		if err := a.Speak(ctx, "x", "1"); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Speak() error = %v, want ErrUnsupported", err)
		}
	}

	if n := logs.FilterMessage("capability unavailable, feature disabled").Len(); n != 2 {
		t.Errorf("warnings = %d, want one per capability", n)
	}
	if a.State().Mode != ModeIdle {
		t.Errorf("Mode = %v, want idle", a.State().Mode)
	}
}

func TestRecognizerReportsUnsupported(t *testing.T) {
	log := &callLog{}
	rec := newFakeRecognizer(log)
	rec.startErr = ErrUnsupported
	a := NewArbiter(rec, nil, nil)
	ctx := context.Background()

	if err := a.ToggleListening(ctx); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
	if err := a.ToggleListening(ctx); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}

	if diff := cmp.Diff([]string{"rec.start"}, log.get()); diff != "" {
		t.Errorf("disabled recognizer must not be started again (-want +got):\n%s", diff)
	}
	if a.State().Mode != ModeIdle {
		t.Errorf("Mode = %v, want idle", a.State().Mode)
	}
}

func TestSpeakFailureReturnsIdle(t *testing.T) {
	log := &callLog{}
	syn := newFakeSynthesizer(log)
	syn.speakErr = errors.New("throttled")
	a := NewArbiter(nil, syn, nil)

	err := a.Speak(context.Background(), "x", "1")
	if err == nil || errors.Is(err, ErrUnsupported) {
		t.Fatalf("Speak() error = %v, want wrapped host error", err)
	}
	if a.State().Mode != ModeIdle {
		t.Errorf("Mode = %v, want idle", a.State().Mode)
	}

	syn.speakErr = nil
	if err := a.Speak(context.Background(), "x", "1"); err != nil {
		t.Errorf("a transient failure must not disable synthesis: %v", err)
	}
}

func TestStateHook(t *testing.T) {
	var mu sync.Mutex
	var modes []Mode
	a := NewArbiter(nil, newFakeSynthesizer(&callLog{}), nil, WithStateHook(func(s State) {
		mu.Lock()
		modes = append(modes, s.Mode)
		mu.Unlock()
	}))

	a.Speak(context.Background(), "x", "1")
	a.Speak(context.Background(), "x", "1")

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]Mode{ModeSpeaking, ModeIdle}, modes); diff != "" {
		t.Errorf("state transitions mismatch (-want +got):\n%s", diff)
	}
}

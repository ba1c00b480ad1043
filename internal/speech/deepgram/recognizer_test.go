// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/docchat/internal/speech"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	if err := os.WriteFile(path, []byte("RIFFfake"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func nextEvent(t *testing.T, r *Recognizer) speech.RecognitionEvent {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no recognition event")
		return speech.RecognitionEvent{}
	}
}

func TestStart_EmitsTranscriptThenEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q, want token header", got)
		}
		if got := r.URL.Query().Get("language"); got != "fr" {
			t.Errorf("language = %q, want fr", got)
		}
		if got := r.URL.Query().Get("model"); got != DefaultModel {
			t.Errorf("model = %q, want %q", got, DefaultModel)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" && got != "audio/x-wav" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFfake" {
			t.Errorf("body = %q", body)
		}
		fmt.Fprint(w, `{"results":{"channels":[{"alternatives":[{"transcript":" bonjour tout le monde ","confidence":0.98}]}]}}`)
	}))
	defer srv.Close()

	r := NewRecognizer(Config{APIKey: "dg-key", Endpoint: srv.URL}, FileSource{Path: writeAudio(t)}, WithHTTPClient(srv.Client()))
	defer r.Close()

	if err := r.Start(context.Background(), 4, "fr-FR"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ev := nextEvent(t, r)
	if ev.Kind != speech.RecognitionResult || ev.Transcript != "bonjour tout le monde" || ev.Session != 4 {
		t.Errorf("first event = %+v, want transcript for session 4", ev)
	}
	if ev := nextEvent(t, r); ev.Kind != speech.RecognitionEnd {
		t.Errorf("second event = %+v, want end", ev)
	}
}

func TestStart_HTTPErrorEmitsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"Invalid credentials."}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRecognizer(Config{APIKey: "bad", Endpoint: srv.URL}, FileSource{Path: writeAudio(t)},
		WithHTTPClient(srv.Client()), WithLogger(zap.New(core)))
	defer r.Close()

	if err := r.Start(context.Background(), 1, "fr-FR"); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, r)
	if ev.Kind != speech.RecognitionError {
		t.Fatalf("event = %+v, want error", ev)
	}
	if !IsAuthError(ev.Err) {
		t.Errorf("IsAuthError(%v) = false", ev.Err)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Errorf("error-level log entries = %d, want 1 for a rejected key", n)
	}
}

func TestStart_MissingFileEmitsError(t *testing.T) {
	r := NewRecognizer(Config{APIKey: "k"}, FileSource{Path: filepath.Join(t.TempDir(), "none.wav")})
	defer r.Close()

	if err := r.Start(context.Background(), 1, ""); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent(t, r); ev.Kind != speech.RecognitionError || !strings.Contains(ev.Err.Error(), "capture audio") {
		t.Errorf("event = %+v, want capture error", ev)
	}
}

func TestStart_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		source AudioSource
	}{
		{"no api key", Config{}, FileSource{Path: "x.wav"}},
		{"no source", Config{APIKey: "k"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecognizer(tt.cfg, tt.source)
			defer r.Close()
			if err := r.Start(context.Background(), 1, "fr-FR"); !errors.Is(err, speech.ErrUnsupported) {
				t.Errorf("Start() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestStop_SuppressesEvents(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewRecognizer(Config{APIKey: "k", Endpoint: srv.URL}, FileSource{Path: writeAudio(t)}, WithHTTPClient(srv.Client()))

	if err := r.Start(context.Background(), 1, "fr-FR"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	r.Close()

	if ev, ok := <-r.Events(); ok {
		t.Errorf("stopped session emitted %+v", ev)
	}
}

func TestLanguage(t *testing.T) {
	tests := map[string]string{
		"fr-FR":   "fr",
		"en-US":   "en",
		"":        "",
		"!!bogus": "!!bogus",
	}
	for in, want := range tests {
		if got := Language(in); got != want {
			t.Errorf("Language(%q) = %q, want %q", in, got, want)
		}
	}
}

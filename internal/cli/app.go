// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of the workflow packages behind the docchat commands.
//
// App owns the backend client, the timeline controller, the upload engine,
// the chat directory and the optional speech stack. Commands build one App
// and close it on exit.

package cli

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/docchat/internal/backend"
	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/history"
	"github.com/jeranaias/docchat/internal/identity"
	"github.com/jeranaias/docchat/internal/speech"
	"github.com/jeranaias/docchat/internal/speech/deepgram"
	"github.com/jeranaias/docchat/internal/speech/polly"
	"github.com/jeranaias/docchat/internal/timeline"
	"github.com/jeranaias/docchat/internal/upload"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App holds the components of one docchat run.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Backend  *backend.Client
	Identity identity.Provider
	Timeline *timeline.Controller
	Uploads  *upload.Engine
	Chats    *history.Directory

	// Speech is nil until EnableSpeech
	Speech *speech.Arbiter

	closers []func() error
}

// NewApp wires the components from cfg. hooks receives upload progress.
func NewApp(cfg *config.Config, logger *zap.Logger, hooks upload.Hooks) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.Backend.Timeout(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		PropagationDelay:  cfg.Backend.PropagationDelay(),
	}, backend.WithLogger(logger.Named("backend")))

	ident := identity.Static(cfg.User.ID)
	tl := timeline.New(client, ident, timeline.WithLogger(logger.Named("timeline")))

	retryDelay := cfg.Upload.RetryDelay()
	if retryDelay == 0 {
		retryDelay = -1 // explicit zero in the config means no wait
	}
	engine := upload.NewEngine(client, tl, upload.Config{
		MaxAttempts:   cfg.Upload.MaxAttempts,
		RetryDelay:    retryDelay,
		ChatTitle:     cfg.Upload.ChatTitle,
		MaxFileBytes:  cfg.Upload.MaxFileBytes,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
	}, upload.WithLogger(logger.Named("upload")), upload.WithHooks(hooks))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Backend:  client,
		Identity: ident,
		Timeline: tl,
		Uploads:  engine,
		Chats:    history.New(client, ident, history.WithLogger(logger.Named("history"))),
	}
}

// EnableSpeech builds the recognizer and synthesizer from the config.
// A missing capability leaves that side disabled; the arbiter reports it
// on first use.
func (a *App) EnableSpeech(onState func(speech.State)) *speech.Arbiter {
	logger := a.Logger.Named("speech")
	cfg := a.Config.Speech

	var rec speech.Recognizer
	if cfg.Recognizer == "deepgram" {
		var source deepgram.AudioSource
		switch {
		case cfg.Deepgram.AudioFile != "":
			source = deepgram.FileSource{Path: cfg.Deepgram.AudioFile}
		case len(cfg.Deepgram.RecordCommand) > 0:
			source = deepgram.CommandSource{Name: cfg.Deepgram.RecordCommand[0], Args: cfg.Deepgram.RecordCommand[1:]}
		}
		r := deepgram.NewRecognizer(deepgram.Config{
			APIKey:   cfg.Deepgram.APIKey,
			Endpoint: cfg.Deepgram.Endpoint,
			Model:    cfg.Deepgram.Model,
		}, source, deepgram.WithLogger(logger))
		a.closers = append(a.closers, r.Close)
		rec = r
	}

	var syn speech.Synthesizer
	if cfg.Synthesizer == "polly" {
		sink, err := polly.FindPlayer(cfg.Polly.PlayerCommand)
		if err != nil {
			logger.Warn("speech output disabled", zap.Error(err))
		} else {
			s := polly.NewSynthesizer(polly.Config{
				Region:  cfg.Polly.Region,
				VoiceID: cfg.Polly.VoiceID,
				Engine:  cfg.Polly.Engine,
			}, sink, polly.WithLogger(logger))
			a.closers = append(a.closers, s.Close)
			syn = s
		}
	}

	a.Speech = speech.NewArbiter(rec, syn, a.Timeline,
		speech.WithLocale(cfg.Locale),
		speech.WithLogger(logger),
		speech.WithStateHook(onState))
	return a.Speech
}

// Close waits for running uploads, then releases the speech hosts.
func (a *App) Close() error {
	a.Uploads.Stop()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// requireUser returns errNoUser when nobody is signed in.
func (a *App) requireUser() error {
	if _, ok := a.Identity.UserID(); !ok {
		return errNoUser
	}
	return nil
}

// openChat binds the timeline to chatID and loads its messages.
func (a *App) openChat(ctx context.Context, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.Config.Backend.Timeout()+5*time.Second)
	defer cancel()
	return a.Timeline.SelectChat(ctx, chatID)
}

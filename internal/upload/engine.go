// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/docchat/internal/backend"
	"github.com/jeranaias/docchat/internal/retry"
	"github.com/jeranaias/docchat/internal/timeline"
)

// Timeline texts.
const (
	DefaultChatTitle = "Nouvelle conversation"
	ProvenanceFormat = "Fichier téléchargé : %s"
	ProcessingText   = "Traitement du document en cours..."
	NoResultText     = "Aucun résultat OCR."
	ErrorText        = "Erreur lors du traitement du document."
	NotReadyText     = "Le résultat OCR n'est pas encore disponible."
)

var (
	// ErrFileTooLarge is returned when a file exceeds Config.MaxFileBytes
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoIdentity is returned when no user is signed in
	ErrNoIdentity = errors.New("no signed-in user")

	// ErrTimedOut is returned when the OCR result never became available
	ErrTimedOut = errors.New("ocr result not available")

	// ErrStopped is returned by Submit after Stop
	ErrStopped = errors.New("upload engine stopped")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is the subset of the chat service used by the workflow.
type Backend interface {
	CreateChat(ctx context.Context, userID, title string) (string, error)
	UploadFile(ctx context.Context, req backend.UploadRequest) (string, error)
	FetchOCRResult(ctx context.Context, fileID string) (string, error)
	RecordBotMessage(ctx context.Context, msg backend.BotMessage) error
}

// Timeline is the subset of the timeline controller used by the workflow.
// The engine never mutates timeline state other than through these calls.
type Timeline interface {
	UserID() (string, bool)
	Session() timeline.Session
	EnsureSession(ctx context.Context, create timeline.CreateFunc) (timeline.Session, error)
	Append(sess timeline.Session, msg timeline.Message) error
	AppendPlaceholder(sess timeline.Session, status timeline.Status, text string) (timeline.Placeholder, error)
	Resolve(ph timeline.Placeholder, msg timeline.Message) (timeline.Message, error)
}

// Hooks lets the shell react to task progress. All fields are optional.
type Hooks struct {
	// OnBusy is called with true when a task starts and false when it ends
	OnBusy func(task *Task, busy bool)

	// ResetInput clears the file selection so the same file can be picked again
	ResetInput func()

	// OnDone is called once the task reached a terminal state
	OnDone func(task *Task)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds workflow parameters.
type Config struct {
	// MaxAttempts bounds OCR polling (default: 5)
	MaxAttempts int

	// RetryDelay is the fixed wait between polls (default: 3s)
	RetryDelay time.Duration

	// ChatTitle names chats created for an upload
	ChatTitle string

	// MaxFileBytes refuses larger files; 0 disables the check
	MaxFileBytes int64

	// MaxConcurrent limits background tasks (default: 2)
	MaxConcurrent int
}

// DefaultConfig returns the default workflow parameters.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   retry.DefaultMaxAttempts,
		RetryDelay:    retry.DefaultDelay,
		ChatTitle:     DefaultChatTitle,
		MaxFileBytes:  25 * 1024 * 1024,
		MaxConcurrent: 2,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHooks sets the shell callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithSleeper replaces the wait between polls, mainly for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(e *Engine) {
		e.sleep = s
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs upload tasks.
type Engine struct {
	backend  Backend
	timeline Timeline
	config   Config
	hooks    Hooks
	logger   *zap.Logger
	sleep    retry.Sleeper

	wg        sync.WaitGroup
	semaphore chan struct{}
	stopped   atomic.Bool
	running   atomic.Int32
}

// NewEngine creates an engine. Zero MaxAttempts, RetryDelay, ChatTitle and
// MaxConcurrent take their defaults; a negative RetryDelay polls without waiting.
func NewEngine(b Backend, tl Timeline, cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	switch {
	case cfg.RetryDelay == 0:
		cfg.RetryDelay = defaults.RetryDelay
	case cfg.RetryDelay < 0:
		cfg.RetryDelay = 0
	}
	if cfg.ChatTitle == "" {
		cfg.ChatTitle = defaults.ChatTitle
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}

	e := &Engine{
		backend:   b,
		timeline:  tl,
		config:    cfg,
		logger:    zap.NewNop(),
		sleep:     retry.Sleep,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sleep == nil {
		e.sleep = retry.Sleep
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Busy reports whether any task is running.
func (e *Engine) Busy() bool {
	return e.running.Load() > 0
}

// Submit runs the task for f in the background. The task keeps running
// when ctx is canceled; it always reaches one of its terminal outcomes.
func (e *Engine) Submit(ctx context.Context, f File) error {
	if e.stopped.Load() {
		return ErrStopped
	}
	ctx = context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.semaphore <- struct{}{}
		defer func() { <-e.semaphore }()

		task, err := e.Run(ctx, f)
		if err != nil {
			e.logger.Info("upload task ended",
				zap.String("task", task.ID),
				zap.String("state", task.State().String()),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every submitted task finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Stop refuses new submissions and waits for the running ones.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.wg.Wait()
}

// Run executes the whole workflow for f and returns the finished task.
// The error is nil once the OCR text was received. Recording it on the
// backend is best effort, and after a chat switch the placeholder may
// already be gone.
func (e *Engine) Run(ctx context.Context, f File) (task *Task, err error) {
	task = NewTask(f, e.config.MaxAttempts)
	log := e.logger.With(zap.String("task", task.ID), zap.String("file", f.Name))

	e.running.Add(1)
	if e.hooks.OnBusy != nil {
		e.hooks.OnBusy(task, true)
	}
	defer func() {
		e.running.Add(-1)
		if e.hooks.OnBusy != nil {
			e.hooks.OnBusy(task, false)
		}
		if e.hooks.ResetInput != nil {
			e.hooks.ResetInput()
		}
		if e.hooks.OnDone != nil {
			e.hooks.OnDone(task)
		}
	}()

	if e.config.MaxFileBytes > 0 && f.Size > e.config.MaxFileBytes {
		err = fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, f.Name, f.Size, e.config.MaxFileBytes)
		task.finish(StateFailed, err)
		return task, err
	}
	userID, ok := e.timeline.UserID()
	if !ok {
		task.finish(StateFailed, ErrNoIdentity)
		return task, ErrNoIdentity
	}

	// 1. Session resolution.
	sess, err := e.timeline.EnsureSession(ctx, func(ctx context.Context, uid string) (string, error) {
		return e.backend.CreateChat(ctx, uid, e.config.ChatTitle)
	})
	if err != nil {
		log.Warn("session resolution failed", zap.Error(err))
		if aerr := e.timeline.Append(e.timeline.Session(), timeline.NewBotMessage(ErrorText, false, timeline.StatusFailed)); aerr != nil {
			log.Debug("failure message not appended", zap.Error(aerr))
		}
		err = fmt.Errorf("resolve session: %w", err)
		task.finish(StateFailed, err)
		return task, err
	}
	task.setChatID(sess.ID)

	// 2. Provenance message.
	if err = e.timeline.Append(sess, timeline.NewUserMessage(fmt.Sprintf(ProvenanceFormat, f.Name))); err != nil {
		task.finish(StateFailed, err)
		return task, err
	}

	// 3. Placeholder, resolved exactly once from here on.
	ph, err := e.timeline.AppendPlaceholder(sess, timeline.StatusPendingOcr, ProcessingText)
	if err != nil {
		task.finish(StateFailed, err)
		return task, err
	}
	resolved := false
	resolve := func(text string, status timeline.Status) {
		resolved = true
		if _, rerr := e.timeline.Resolve(ph, timeline.NewBotMessage(text, false, status)); rerr != nil {
			log.Debug("placeholder not resolved", zap.Error(rerr))
		}
	}
	defer func() {
		if !resolved {
			resolve(ErrorText, timeline.StatusFailed)
		}
	}()

	// 4. Binary transfer.
	fileID, err := e.transfer(ctx, f, userID, sess.ID)
	if err != nil {
		log.Warn("upload failed", zap.Error(err))
		resolve(ErrorText, timeline.StatusFailed)
		err = fmt.Errorf("upload %s: %w", f.Name, err)
		task.finish(StateFailed, err)
		return task, err
	}
	task.setFileID(fileID)
	if err = task.SetState(StatePolling); err != nil {
		return task, err
	}

	// 5. Bounded polling.
	var text string
	policy := retry.DefaultPolicy(func(err error) bool { return errors.Is(err, backend.ErrNotReady) })
	policy.MaxAttempts = e.config.MaxAttempts
	policy.Delay = e.config.RetryDelay
	policy.Sleep = e.sleep
	policy.OnRetry = func(attempt int, err error) {
		log.Debug("ocr result not ready", zap.Int("attempt", attempt))
	}
	attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		task.setAttempt(attempt)
		var ferr error
		text, ferr = e.backend.FetchOCRResult(ctx, fileID)
		return ferr
	})

	switch {
	case err == nil:
		if strings.TrimSpace(text) == "" {
			text = NoResultText
		}
		resolve(text, timeline.StatusCommitted)
		if rerr := e.backend.RecordBotMessage(ctx, backend.BotMessage{ChatID: sess.ID, UserID: userID, Text: text}); rerr != nil {
			log.Warn("recording ocr result failed", zap.Error(rerr))
		}
		task.finish(StateSucceeded, nil)
		log.Info("ocr result received", zap.Int("attempts", attempts))
		return task, nil

	case errors.Is(err, retry.ErrExhausted):
		resolve(NotReadyText, timeline.StatusFailed)
		err = fmt.Errorf("%w after %d attempts", ErrTimedOut, attempts)
		task.finish(StateTimedOut, err)
		return task, err

	default:
		log.Warn("ocr result failed", zap.Int("attempt", attempts), zap.Error(err))
		resolve(ErrorText, timeline.StatusFailed)
		err = fmt.Errorf("fetch ocr result: %w", err)
		task.finish(StateFailed, err)
		return task, err
	}
}

func (e *Engine) transfer(ctx context.Context, f File, userID, chatID string) (string, error) {
	if f.Open == nil {
		return "", errors.New("file has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	return e.backend.UploadFile(ctx, backend.UploadRequest{
		FileName:    f.Name,
		ContentType: f.MimeType,
		Content:     rc,
		UserID:      userID,
		ChatID:      chatID,
	})
}

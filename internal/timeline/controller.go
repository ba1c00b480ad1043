// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package timeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/docchat/internal/backend"
	"github.com/jeranaias/docchat/internal/identity"
)

// SendErrorText replaces the assistant reply when a send fails.
const SendErrorText = "Erreur lors de la communication avec le serveur."

// HistoryErrorText is shown when a chat's messages could not be loaded.
const HistoryErrorText = "Erreur lors du chargement de la conversation."

var (
	// ErrEmptyMessage is returned when the trimmed text is empty
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoIdentity is returned when no user is signed in
	ErrNoIdentity = errors.New("no signed-in user")

	// ErrSessionChanged is returned when a result arrived for an abandoned session
	ErrSessionChanged = errors.New("session changed while request was in flight")

	// ErrNotPending is returned when the replaced message is not a placeholder
	ErrNotPending = errors.New("message is not pending")

	// ErrStalePlaceholder is returned when the placeholder is no longer in the timeline
	ErrStalePlaceholder = errors.New("placeholder no longer in timeline")

	// ErrNoPending is returned by ReplaceLastPending on an empty timeline
	ErrNoPending = errors.New("no pending message")

	// ErrPendingStatus is returned when Append is given a pending message
	ErrPendingStatus = errors.New("pending messages must be added with AppendPlaceholder")
)

// Backend is the subset of the chat service the controller talks to.
type Backend interface {
	SendMessage(ctx context.Context, req backend.SendRequest) (*backend.SendResponse, error)
	FetchMessages(ctx context.Context, chatID string) ([]backend.RemoteMessage, error)
}

// CreateFunc creates a chat on the backend for userID and returns its id.
type CreateFunc func(ctx context.Context, userID string) (string, error)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used by the controller.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the single source of truth for the displayed timeline.
// It is safe for concurrent use; no lock is held across network I/O.
type Controller struct {
	backend  Backend
	identity identity.Provider
	logger   *zap.Logger
	policy   *bluemonday.Policy
	now      func() time.Time
	creating singleflight.Group

	mu       sync.Mutex
	session  Session
	messages []Message
	input    string

	pubMu       sync.Mutex
	subscribers map[int]chan []Message
	nextSub     int
}

// New creates a controller for an unbound session.
func New(b Backend, ident identity.Provider, opts ...Option) *Controller {
	if ident == nil {
		ident = identity.Anonymous
	}
	c := &Controller{
		backend:     b,
		identity:    ident,
		logger:      zap.NewNop(),
		policy:      bluemonday.UGCPolicy(),
		now:         time.Now,
		subscribers: make(map[int]chan []Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Messages returns a snapshot of the timeline.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Session returns the active session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ChatID returns the active chat id, empty when unbound.
func (c *Controller) ChatID() string {
	return c.Session().ID
}

// UserID returns the signed-in user, if any.
func (c *Controller) UserID() (string, bool) {
	return c.identity.UserID()
}

// Input returns the pending input buffer.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the pending input buffer.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

// Subscribe returns a channel receiving a snapshot after every change.
// Slow readers only see the latest snapshot. Call cancel to unsubscribe.
func (c *Controller) Subscribe() (<-chan []Message, func()) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan []Message, 1)
	c.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.pubMu.Lock()
			delete(c.subscribers, id)
			close(ch)
			c.pubMu.Unlock()
		})
	}
	return ch, cancel
}

// =============================================================================
// SENDING
// =============================================================================

// Submit sends the pending input buffer and clears it.
// The buffer is left untouched when a precondition fails.
func (c *Controller) Submit(ctx context.Context) (Message, error) {
	c.mu.Lock()
	text := normalize(c.input)
	if text == "" {
		c.mu.Unlock()
		return Message{}, ErrEmptyMessage
	}
	userID, ok := c.identity.UserID()
	if !ok {
		c.mu.Unlock()
		return Message{}, ErrNoIdentity
	}
	c.input = ""
	c.mu.Unlock()

	return c.send(ctx, text, userID)
}

// AppendUserMessage appends a committed user message followed by a pending
// bot placeholder, sends the text, and resolves the placeholder with the
// reply or with SendErrorText. It returns the terminal bot message.
//
// Send failures are reported in the timeline, not as an error. The error is
// non-nil only for unmet preconditions or when the session changed while the
// request was in flight, in which case the reply is dropped.
func (c *Controller) AppendUserMessage(ctx context.Context, text string) (Message, error) {
	text = normalize(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	userID, ok := c.identity.UserID()
	if !ok {
		return Message{}, ErrNoIdentity
	}
	return c.send(ctx, text, userID)
}

func (c *Controller) send(ctx context.Context, text, userID string) (Message, error) {
	c.mu.Lock()
	c.messages = append(c.messages, c.stamp(NewUserMessage(text)))
	ph := c.appendPlaceholderLocked(StatusPendingResponse, "")
	sess := c.session
	c.mu.Unlock()
	c.publish()

	resp, err := c.backend.SendMessage(ctx, backend.SendRequest{
		UserInput: text,
		UserID:    userID,
		ChatID:    sess.ID,
	})

	var reply Message
	if err != nil {
		c.logger.Warn("send message failed",
			zap.String("chat_id", sess.ID),
			zap.Error(err))
		reply = NewBotMessage(SendErrorText, false, StatusFailed)
	} else {
		reply = NewBotMessage(c.policy.Sanitize(resp.Response), true, StatusCommitted)
	}

	c.mu.Lock()
	if c.session.Generation != sess.Generation {
		c.mu.Unlock()
		c.logger.Debug("discarding reply for abandoned session",
			zap.String("chat_id", sess.ID),
			zap.Uint64("generation", sess.Generation))
		return Message{}, ErrSessionChanged
	}
	if err == nil && c.session.ID == "" && resp.ChatID != "" {
		c.session.ID = resp.ChatID
		c.logger.Info("chat session bound", zap.String("chat_id", resp.ChatID))
	}
	reply, rerr := c.resolveLocked(ph, reply)
	c.mu.Unlock()
	c.publish()

	return reply, rerr
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// FetchHistory replaces the timeline with the server's message list.
// Without a signed-in user or a chat id it does nothing. The result is
// dropped if chatID is no longer the active session when it arrives.
//
// A failed fetch for the active session appends a HistoryErrorText
// message; the error is still returned so callers can set an exit code.
func (c *Controller) FetchHistory(ctx context.Context, chatID string) error {
	if _, ok := c.identity.UserID(); !ok || chatID == "" {
		return nil
	}

	c.mu.Lock()
	gen := c.session.Generation
	c.mu.Unlock()

	remote, err := c.backend.FetchMessages(ctx, chatID)
	if err != nil {
		c.logger.Warn("fetch history failed", zap.String("chat_id", chatID), zap.Error(err))
		c.mu.Lock()
		current := c.session.Generation == gen && c.session.ID == chatID
		if current {
			c.messages = append(c.messages, c.stamp(NewBotMessage(HistoryErrorText, false, StatusFailed)))
		}
		c.mu.Unlock()
		if current {
			c.publish()
		}
		return err
	}

	msgs := make([]Message, 0, len(remote))
	for _, rm := range remote {
		sender := ParseSender(rm.Sender)
		m := Message{
			ID:     newID(),
			Text:   rm.Text,
			Sender: sender,
			Status: StatusCommitted,
		}
		if sender == SenderBot && rm.IsHTML {
			m.Rich = true
			m.Text = c.policy.Sanitize(rm.Text)
		}
		msgs = append(msgs, c.stamp(m))
	}

	c.mu.Lock()
	if c.session.Generation != gen || c.session.ID != chatID {
		c.mu.Unlock()
		return ErrSessionChanged
	}
	c.messages = msgs
	c.mu.Unlock()
	c.publish()
	return nil
}

// SelectChat makes chatID the active session and loads its history.
// Any optimistic state of the previous session is dropped.
func (c *Controller) SelectChat(ctx context.Context, chatID string) error {
	c.reset(chatID)
	return c.FetchHistory(ctx, chatID)
}

// NewChat starts an unbound session with an empty timeline.
func (c *Controller) NewChat() {
	c.reset("")
}

func (c *Controller) reset(chatID string) {
	c.mu.Lock()
	c.session = Session{ID: chatID, Generation: c.session.Generation + 1}
	c.messages = nil
	c.mu.Unlock()
	c.publish()
}

// EnsureSession returns the active session, creating a chat through create
// when it is unbound. A freshly created session starts a new generation with
// an empty timeline. Concurrent callers share a single create call.
func (c *Controller) EnsureSession(ctx context.Context, create CreateFunc) (Session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess.Bound() {
		return sess, nil
	}

	userID, ok := c.identity.UserID()
	if !ok {
		return Session{}, ErrNoIdentity
	}

	v, err, _ := c.creating.Do(strconv.FormatUint(sess.Generation, 10), func() (interface{}, error) {
		chatID, err := create(ctx, userID)
		if err != nil {
			return Session{}, err
		}

		c.mu.Lock()
		if c.session.Generation != sess.Generation {
			c.mu.Unlock()
			return Session{}, ErrSessionChanged
		}
		if c.session.Bound() {
			// A send reply bound the session first.
			bound := c.session
			c.mu.Unlock()
			c.logger.Debug("session bound concurrently",
				zap.String("chat_id", bound.ID),
				zap.String("discarded_chat_id", chatID))
			return bound, nil
		}
		c.session = Session{ID: chatID, Generation: c.session.Generation + 1}
		c.messages = nil
		fresh := c.session
		c.mu.Unlock()

		c.logger.Info("chat session created", zap.String("chat_id", chatID))
		c.publish()
		return fresh, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

// =============================================================================
// SESSION-CHECKED WRITES
// =============================================================================

// Append adds a final message to sess. Pending messages must go through
// AppendPlaceholder.
func (c *Controller) Append(sess Session, msg Message) error {
	if msg.Status.IsPending() {
		return ErrPendingStatus
	}
	if msg.ID == "" {
		msg.ID = newID()
	}

	c.mu.Lock()
	if c.session.Generation != sess.Generation {
		c.mu.Unlock()
		return ErrSessionChanged
	}
	c.messages = append(c.messages, c.stamp(msg))
	c.mu.Unlock()
	c.publish()
	return nil
}

// AppendPlaceholder adds a pending bot message to sess.
func (c *Controller) AppendPlaceholder(sess Session, status Status, text string) (Placeholder, error) {
	if !status.IsPending() {
		return Placeholder{}, ErrNotPending
	}

	c.mu.Lock()
	if c.session.Generation != sess.Generation {
		c.mu.Unlock()
		return Placeholder{}, ErrSessionChanged
	}
	ph := c.appendPlaceholderLocked(status, text)
	c.mu.Unlock()
	c.publish()
	return ph, nil
}

// Resolve replaces the placeholder in place with msg, which keeps the
// placeholder's id and creation time. The placeholder must still be pending.
func (c *Controller) Resolve(ph Placeholder, msg Message) (Message, error) {
	c.mu.Lock()
	resolved, err := c.resolveLocked(ph, msg)
	c.mu.Unlock()
	if err == nil {
		c.publish()
	}
	return resolved, err
}

// ReplaceLastPending replaces the last message of the timeline, which must
// be a pending placeholder.
func (c *Controller) ReplaceLastPending(msg Message) (Message, error) {
	c.mu.Lock()
	if len(c.messages) == 0 {
		c.mu.Unlock()
		return Message{}, ErrNoPending
	}
	last := c.messages[len(c.messages)-1]
	resolved, err := c.resolveLocked(Placeholder{ID: last.ID, Generation: c.session.Generation}, msg)
	c.mu.Unlock()
	if err == nil {
		c.publish()
	}
	return resolved, err
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Controller) appendPlaceholderLocked(status Status, text string) Placeholder {
	msg := c.stamp(NewBotMessage(text, false, status))
	c.messages = append(c.messages, msg)
	return Placeholder{ID: msg.ID, Generation: c.session.Generation}
}

func (c *Controller) resolveLocked(ph Placeholder, msg Message) (Message, error) {
	if ph.Generation != c.session.Generation {
		return Message{}, ErrStalePlaceholder
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		cur := c.messages[i]
		if cur.ID != ph.ID {
			continue
		}
		if !cur.Status.IsPending() {
			return Message{}, ErrNotPending
		}
		msg.ID = cur.ID
		msg.Sender = SenderBot
		msg.CreatedAt = cur.CreatedAt
		c.messages[i] = msg
		return msg, nil
	}
	return Message{}, ErrStalePlaceholder
}

func (c *Controller) stamp(m Message) Message {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.now()
	}
	return m
}

func (c *Controller) snapshotLocked() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// publish delivers the current snapshot. Snapshots are taken under pubMu so
// subscribers never observe them out of order.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if len(c.subscribers) == 0 {
		return
	}

	snap := c.Messages()
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func normalize(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

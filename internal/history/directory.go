// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the list of the user's past chats.
//
// The Directory is a cached view of GET /chat-histories/{userId}. It is
// refreshed on demand, never in the background, and purging re-lists so the
// cache reflects what the service kept.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/docchat/internal/backend"
	"github.com/jeranaias/docchat/internal/identity"
)

// ErrNoIdentity is returned by PurgeAll when nobody is signed in.
var ErrNoIdentity = errors.New("no signed-in user")

// Backend is the subset of the chat service the directory needs.
type Backend interface {
	ListChatHistories(ctx context.Context, userID string) ([]backend.ChatHistory, error)
	DeleteAllChatHistories(ctx context.Context, userID string) error
}

// Chat is one past conversation.
type Chat struct {
	ID        string
	Title     string
	CreatedAt time.Time // zero when the service sent none or an unknown format
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the directory logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Directory caches the chat list for the signed-in user.
type Directory struct {
	backend  Backend
	identity identity.Provider
	logger   *zap.Logger

	mu    sync.RWMutex
	chats []Chat
}

// New creates an empty directory.
func New(b Backend, ident identity.Provider, opts ...Option) *Directory {
	if ident == nil {
		ident = identity.Anonymous
	}
	d := &Directory{
		backend:  b,
		identity: ident,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Refresh re-lists the chats, newest first. Without a signed-in user it is
// a no-op returning the cached list.
func (d *Directory) Refresh(ctx context.Context) ([]Chat, error) {
	userID, ok := d.identity.UserID()
	if !ok {
		return d.Chats(), nil
	}

	remote, err := d.backend.ListChatHistories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	chats := make([]Chat, 0, len(remote))
	for _, h := range remote {
		if strings.TrimSpace(h.ChatID) == "" {
			continue
		}
		chats = append(chats, Chat{
			ID:        h.ChatID,
			Title:     h.Title,
			CreatedAt: parseTime(h.CreatedAt),
		})
	}
	// Stable so undated chats keep the service order
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})

	d.mu.Lock()
	d.chats = chats
	d.mu.Unlock()

	d.logger.Debug("chat list refreshed", zap.Int("count", len(chats)))
	return copyChats(chats), nil
}

// Chats returns the cached list.
func (d *Directory) Chats() []Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyChats(d.chats)
}

// Find resolves ref against the cached list: an exact id, then a 1-based
// index as printed by the chat list, then a unique id prefix. An id always
// wins over an index so numeric ids stay reachable.
func (d *Directory) Find(ref string) (Chat, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Chat{}, false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.chats {
		if c.ID == ref {
			return c, true
		}
	}

	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(d.chats) {
		return d.chats[n-1], true
	}

	var match Chat
	matches := 0
	for _, c := range d.chats {
		if strings.HasPrefix(c.ID, ref) {
			match = c
			matches++
		}
	}
	return match, matches == 1
}

// PurgeAll deletes every chat of the user and re-lists. The client waits
// out the service's propagation delay before the re-list.
func (d *Directory) PurgeAll(ctx context.Context) ([]Chat, error) {
	userID, ok := d.identity.UserID()
	if !ok {
		return nil, ErrNoIdentity
	}
	if err := d.backend.DeleteAllChatHistories(ctx, userID); err != nil {
		return nil, fmt.Errorf("delete chats: %w", err)
	}
	d.logger.Info("chat histories purged")
	return d.Refresh(ctx)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func copyChats(chats []Chat) []Chat {
	if chats == nil {
		return nil
	}
	out := make([]Chat, len(chats))
	copy(out, chats)
	return out
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inbox

import (
	"sort"
	"time"
)

// stamp identifies one version of a file.
type stamp struct {
	size    int64
	modTime time.Time
}

// queue debounces change notifications per path and remembers which file
// versions were already handed over. Not safe for concurrent use.
type queue struct {
	debounce time.Duration
	pending  map[string]time.Time
	handled  map[string]stamp
}

func newQueue(debounce time.Duration) *queue {
	return &queue{
		debounce: debounce,
		pending:  make(map[string]time.Time),
		handled:  make(map[string]stamp),
	}
}

// touch records a change to path at now, restarting its quiet period.
func (q *queue) touch(path string, now time.Time) {
	q.pending[path] = now
}

// forget drops path entirely, so a file recreated later is handled again.
func (q *queue) forget(path string) {
	delete(q.pending, path)
	delete(q.handled, path)
}

// due pops the paths that have been quiet for the debounce period, sorted.
func (q *queue) due(now time.Time) []string {
	var ready []string
	for path, changed := range q.pending {
		if now.Sub(changed) >= q.debounce {
			ready = append(ready, path)
			delete(q.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// claim reports whether this version of path is new, and records it.
func (q *queue) claim(path string, s stamp) bool {
	if prev, ok := q.handled[path]; ok && prev.size == s.size && prev.modTime.Equal(s.modTime) {
		return false
	}
	q.handled[path] = s
	return true
}

func (q *queue) len() int {
	return len(q.pending)
}

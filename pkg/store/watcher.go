// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SessionEventType classifies a change observed in the store directory.
type SessionEventType string

const (
	SessionCreated SessionEventType = "created"
	SessionUpdated SessionEventType = "updated"
	SessionRemoved SessionEventType = "removed"
	SessionError   SessionEventType = "error"
)

// SessionEvent reports a change to a stored session.
type SessionEvent struct {
	Type        SessionEventType
	AggregateID string
	Error       error
}

// SessionWatcher watches a store root for session changes using fsnotify.
// Rapid bursts of file events for one session (an append of several events,
// a snapshot write) are coalesced into a single notification.
type SessionWatcher struct {
	watcher       *fsnotify.Watcher
	root          string
	eventChan     chan SessionEvent
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
	isWatching    bool
	debounceDelay time.Duration
}

// SessionWatcherConfig configures the session watcher.
type SessionWatcherConfig struct {
	Root          string
	DebounceDelay time.Duration // Delay before processing events (default: 100ms)
}

// NewSessionWatcher creates a watcher for the given store root.
func NewSessionWatcher(cfg SessionWatcherConfig) (*SessionWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = 100 * time.Millisecond
	}

	return &SessionWatcher{
		watcher:       watcher,
		root:          cfg.Root,
		eventChan:     make(chan SessionEvent, 100),
		debounceDelay: debounce,
	}, nil
}

// Start begins watching the store root for changes.
func (sw *SessionWatcher) Start(ctx context.Context) (<-chan SessionEvent, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.isWatching {
		return sw.eventChan, nil
	}

	sw.ctx, sw.cancel = context.WithCancel(ctx)
	sw.isWatching = true

	if err := sw.setupWatching(); err != nil {
		sw.isWatching = false
		return nil, err
	}

	go sw.watchEvents()

	slog.Debug("Started session watcher", "root", sw.root)

	return sw.eventChan, nil
}

// Stop stops watching for changes.
func (sw *SessionWatcher) Stop() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.isWatching {
		return nil
	}

	sw.cancel()
	sw.isWatching = false

	if err := sw.watcher.Close(); err != nil {
		return err
	}

	close(sw.eventChan)

	slog.Debug("Stopped session watcher", "root", sw.root)

	return nil
}

// IsWatching returns whether the watcher is active.
func (sw *SessionWatcher) IsWatching() bool {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.isWatching
}

// setupWatching adds the root and all existing session directories.
func (sw *SessionWatcher) setupWatching() error {
	if err := sw.watcher.Add(sw.root); err != nil {
		return err
	}

	return filepath.Walk(sw.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := sw.watcher.Add(path); err != nil {
				slog.Warn("Failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// watchEvents processes fsnotify events.
func (sw *SessionWatcher) watchEvents() {
	// Debounce map to coalesce rapid events per session
	pendingEvents := make(map[string]SessionEventType)
	var pendingMu sync.Mutex
	var debounceTimer *time.Timer

	processEvents := func() {
		pendingMu.Lock()
		events := pendingEvents
		pendingEvents = make(map[string]SessionEventType)
		pendingMu.Unlock()

		for id, eventType := range events {
			sw.emit(SessionEvent{Type: eventType, AggregateID: id})
		}
	}

	for {
		select {
		case <-sw.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			processEvents()
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			// Skip chmod events and in-flight temp files
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if strings.HasSuffix(event.Name, ".tmp") {
				continue
			}

			id, eventType, ok := sw.classify(event)
			if !ok {
				continue
			}

			pendingMu.Lock()
			pendingEvents[id] = mergeEventTypes(pendingEvents[id], eventType)
			pendingMu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(sw.debounceDelay, processEvents)

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Session watcher error", "root", sw.root, "error", err)
			sw.emit(SessionEvent{Type: SessionError, Error: err})
		}
	}
}

// classify maps a filesystem event to the session it belongs to.
func (sw *SessionWatcher) classify(event fsnotify.Event) (string, SessionEventType, bool) {
	rel, err := filepath.Rel(sw.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}

	parts := strings.Split(rel, string(filepath.Separator))
	id := parts[0]
	if strings.HasPrefix(id, ".") {
		return "", "", false
	}

	if len(parts) == 1 {
		switch {
		case event.Op&fsnotify.Create == fsnotify.Create:
			// New session directory: watch it so appends are visible.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := sw.watcher.Add(event.Name); err != nil {
					slog.Warn("Failed to watch new session directory", "path", event.Name, "error", err)
				}
			}
			return id, SessionCreated, true
		case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
			return id, SessionRemoved, true
		}
		return id, SessionUpdated, true
	}

	// Changes below the session directory (event files, snapshot).
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := sw.watcher.Add(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return "", "", false
		}
	}
	if event.Op&fsnotify.Remove == fsnotify.Remove && len(parts) == 2 {
		return "", "", false
	}
	return id, SessionUpdated, true
}

// mergeEventTypes coalesces two observations of the same session within one
// debounce window. Removal wins, creation beats plain updates.
func mergeEventTypes(existing, incoming SessionEventType) SessionEventType {
	if existing == "" {
		return incoming
	}
	if existing == SessionRemoved || incoming == SessionRemoved {
		return SessionRemoved
	}
	if existing == SessionCreated || incoming == SessionCreated {
		return SessionCreated
	}
	return incoming
}

func (sw *SessionWatcher) emit(event SessionEvent) {
	select {
	case sw.eventChan <- event:
	case <-sw.ctx.Done():
	default:
		slog.Warn("Session event channel full, dropping event", "session", event.AggregateID, "event", event.Type)
	}
}

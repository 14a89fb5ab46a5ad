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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kadirpekel/argus/pkg/research"
)

func waitForSessionEvent(t *testing.T, ch <-chan SessionEvent, want SessionEventType, id string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed while waiting for %s %s", want, id)
			}
			if event.Type == want && event.AggregateID == id {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", want, id)
		}
	}
}

func TestWatcherSeesSessionLifecycle(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileEventStore(root)
	if err != nil {
		t.Fatalf("NewFileEventStore failed: %v", err)
	}

	w, err := NewSessionWatcher(SessionWatcherConfig{Root: root, DebounceDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSessionWatcher failed: %v", err)
	}
	ch, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if !w.IsWatching() {
		t.Fatal("IsWatching false after Start")
	}

	ctx := context.Background()
	fillStream(t, s, "session-1", 2)
	waitForSessionEvent(t, ch, SessionCreated, "session-1")

	err = s.AppendEvents(ctx, "session-1", []research.Event{fillerEvent("session-1", 3)}, 2)
	if err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}
	waitForSessionEvent(t, ch, SessionUpdated, "session-1")

	if err := os.RemoveAll(filepath.Join(root, "session-1")); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	waitForSessionEvent(t, ch, SessionRemoved, "session-1")
}

func TestWatcherStartIsIdempotent(t *testing.T) {
	w, err := NewSessionWatcher(SessionWatcherConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewSessionWatcher failed: %v", err)
	}
	defer w.Stop()

	ch1, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	ch2, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if ch1 != ch2 {
		t.Error("second Start returned a different channel")
	}
}

func TestWatcherStopClosesChannel(t *testing.T) {
	w, err := NewSessionWatcher(SessionWatcherConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewSessionWatcher failed: %v", err)
	}
	ch, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.IsWatching() {
		t.Error("IsWatching true after Stop")
	}

	select {
	case _, ok := <-ch:
		if ok {
			// Drain any event emitted before Stop.
			for range ch {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}

	// Stop again is a no-op.
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

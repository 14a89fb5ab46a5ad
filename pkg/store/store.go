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

// Package store persists research event streams and snapshots. The canonical
// implementation keeps one directory per session with numbered event files,
// so a session survives process crashes and stays inspectable with plain
// filesystem tools.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/argus/pkg/research"
)

const (
	eventsDirName    = "events"
	snapshotFileName = "snapshot.json"
	dirPerm          = 0755
	filePerm         = 0644
)

// EventStore is the persistence port for research sessions.
type EventStore interface {
	// AppendEvents atomically appends events to an aggregate's stream.
	// expectedVersion is the stream version the caller last observed; if the
	// stream has moved past it the append fails with a version conflict.
	AppendEvents(ctx context.Context, aggregateID string, events []research.Event, expectedVersion int) error

	// LoadEvents returns the full event stream in version order.
	LoadEvents(ctx context.Context, aggregateID string) ([]research.Event, error)

	// LoadEventsFrom returns the events with version greater than afterVersion.
	LoadEventsFrom(ctx context.Context, aggregateID string, afterVersion int) ([]research.Event, error)

	// SaveSnapshot stores an aggregate snapshot, replacing any previous one.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// LoadSnapshot returns the latest snapshot, or nil if none exists.
	LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)

	// GetAllAggregateIDs returns the ids of all stored aggregates.
	GetAllAggregateIDs(ctx context.Context) ([]string, error)
}

// Snapshot is a point-in-time serialization of an aggregate, used to avoid
// replaying long event streams on load.
type Snapshot struct {
	AggregateID string          `json:"aggregate_id"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
}

// VersionConflictError reports an optimistic concurrency failure: the stream
// advanced past the version the writer based its events on.
type VersionConflictError struct {
	AggregateID string
	Expected    int
	Actual      int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected version %d, stream is at %d",
		e.AggregateID, e.Expected, e.Actual)
}

// FileEventStore stores each aggregate under <root>/<id>/ with events in
// numbered JSON files and the snapshot beside them:
//
//	<root>/<id>/events/000001_research.started.json
//	<root>/<id>/snapshot.json
//
// Writes go through a temp file and rename, and appends for one aggregate are
// serialized in-process. The zero-padded version prefix makes lexical
// filename order equal version order.
type FileEventStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileEventStore creates a file-backed event store rooted at root.
func NewFileEventStore(root string) (*FileEventStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store root must not be empty")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileEventStore{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the store's root directory.
func (s *FileEventStore) Root() string {
	return s.root
}

func (s *FileEventStore) lockFor(aggregateID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[aggregateID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[aggregateID] = lock
	}
	return lock
}

func (s *FileEventStore) aggregateDir(aggregateID string) (string, error) {
	if aggregateID == "" || aggregateID != filepath.Base(aggregateID) || strings.HasPrefix(aggregateID, ".") {
		return "", fmt.Errorf("invalid aggregate id %q", aggregateID)
	}
	return filepath.Join(s.root, aggregateID), nil
}

// AppendEvents implements EventStore.
func (s *FileEventStore) AppendEvents(ctx context.Context, aggregateID string, events []research.Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.aggregateDir(aggregateID)
	if err != nil {
		return err
	}

	lock := s.lockFor(aggregateID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.currentVersion(dir)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		return &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
	}

	eventsDir := filepath.Join(dir, eventsDirName)
	if err := os.MkdirAll(eventsDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}

	for i, event := range events {
		if want := expectedVersion + i + 1; event.GetVersion() != want {
			return fmt.Errorf("event %d has version %d, want %d", i, event.GetVersion(), want)
		}
		data, err := json.MarshalIndent(event, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.GetType(), err)
		}
		name := fmt.Sprintf("%06d_%s.json", event.GetVersion(), sanitizeFileName(event.GetType()))
		if err := writeFileAtomic(filepath.Join(eventsDir, name), data); err != nil {
			return fmt.Errorf("failed to write event %s: %w", event.GetType(), err)
		}
	}
	return nil
}

// LoadEvents implements EventStore.
func (s *FileEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]research.Event, error) {
	return s.LoadEventsFrom(ctx, aggregateID, 0)
}

// LoadEventsFrom implements EventStore.
func (s *FileEventStore) LoadEventsFrom(ctx context.Context, aggregateID string, afterVersion int) ([]research.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.aggregateDir(aggregateID)
	if err != nil {
		return nil, err
	}

	eventsDir := filepath.Join(dir, eventsDirName)
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read events directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var events []research.Event
	for _, name := range names {
		version, ok := versionFromFileName(name)
		if !ok {
			continue
		}
		if version <= afterVersion {
			continue
		}
		data, err := os.ReadFile(filepath.Join(eventsDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read event file %s: %w", name, err)
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse event file %s: %w", name, err)
		}
		event, err := research.DecodeEvent(probe.Type, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event file %s: %w", name, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// SaveSnapshot implements EventStore.
func (s *FileEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.aggregateDir(snapshot.AggregateID)
	if err != nil {
		return err
	}

	lock := s.lockFor(snapshot.AggregateID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create aggregate directory: %w", err)
	}

	snap := *snapshot
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, snapshotFileName), data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements EventStore.
func (s *FileEventStore) LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.aggregateDir(aggregateID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, snapshotFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}

// GetAllAggregateIDs implements EventStore.
func (s *FileEventStore) GetAllAggregateIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids, nil
}

// currentVersion returns the highest event version on disk, 0 for a new
// aggregate. Callers hold the aggregate lock.
func (s *FileEventStore) currentVersion(dir string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(dir, eventsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read events directory: %w", err)
	}
	max := 0
	for _, entry := range entries {
		if version, ok := versionFromFileName(entry.Name()); ok && version > max {
			max = version
		}
	}
	return max, nil
}

func versionFromFileName(name string) (int, bool) {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return 0, false
	}
	version, err := strconv.Atoi(name[:idx])
	if err != nil || version <= 0 {
		return 0, false
	}
	return version, true
}

// sanitizeFileName keeps the event type readable in the filename while
// rejecting anything that could escape the events directory. The type field
// inside the file stays authoritative for decoding.
func sanitizeFileName(eventType string) string {
	var b strings.Builder
	for _, r := range eventType {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

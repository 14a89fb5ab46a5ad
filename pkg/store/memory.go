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
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/argus/pkg/research"
)

// MemoryEventStore keeps event streams in memory. It implements the same
// concurrency contract as the file store and is intended for tests and
// short-lived embedded use.
type MemoryEventStore struct {
	mu        sync.Mutex
	events    map[string][]research.Event
	snapshots map[string]*Snapshot
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events:    make(map[string][]research.Event),
		snapshots: make(map[string]*Snapshot),
	}
}

// AppendEvents implements EventStore.
func (s *MemoryEventStore) AppendEvents(ctx context.Context, aggregateID string, events []research.Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[aggregateID]
	current := 0
	if len(stream) > 0 {
		current = stream[len(stream)-1].GetVersion()
	}
	if current != expectedVersion {
		return &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
	}
	for i, event := range events {
		if want := expectedVersion + i + 1; event.GetVersion() != want {
			return fmt.Errorf("event %d has version %d, want %d", i, event.GetVersion(), want)
		}
	}
	s.events[aggregateID] = append(stream, events...)
	return nil
}

// LoadEvents implements EventStore.
func (s *MemoryEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]research.Event, error) {
	return s.LoadEventsFrom(ctx, aggregateID, 0)
}

// LoadEventsFrom implements EventStore.
func (s *MemoryEventStore) LoadEventsFrom(ctx context.Context, aggregateID string, afterVersion int) ([]research.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []research.Event
	for _, event := range s.events[aggregateID] {
		if event.GetVersion() > afterVersion {
			events = append(events, event)
		}
	}
	return events, nil
}

// SaveSnapshot implements EventStore.
func (s *MemoryEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := *snapshot
	snap.Data = append([]byte(nil), snapshot.Data...)
	s.snapshots[snapshot.AggregateID] = &snap
	return nil
}

// LoadSnapshot implements EventStore.
func (s *MemoryEventStore) LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	snap := *snapshot
	snap.Data = append([]byte(nil), snapshot.Data...)
	return &snap, nil
}

// GetAllAggregateIDs implements EventStore.
func (s *MemoryEventStore) GetAllAggregateIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

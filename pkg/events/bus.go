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

package events

import (
	"sync"
	"time"
)

// DefaultBufferSize is used when NewBus is given a non-positive capacity.
const DefaultBufferSize = 100

// Bus fans events out to subscribers over buffered channels. Publish never
// blocks: when a subscriber's buffer is full, that subscriber's oldest queued
// event is dropped to make room. A slow display therefore sees a gappy stream
// instead of stalling research workers.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	bufSize int
	closed  bool
}

type subscriber struct {
	ch    chan Event
	types map[EventType]struct{} // nil means all types
}

func (s *subscriber) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// NewBus creates a bus whose subscriber channels buffer up to bufSize events.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Bus{bufSize: bufSize}
}

// Subscribe registers a subscriber for the given event types (none means all)
// and returns its receive channel. The channel is closed on Unsubscribe or
// Close; subscribing to a closed bus returns an already-closed channel.
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	sub := &subscriber{ch: make(chan Event, b.bufSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Unsubscribe removes the subscriber owning ch and closes the channel.
// Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.ch == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers e to every subscriber interested in its type without
// blocking. A zero Timestamp is stamped with the current time. Publishing on
// a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Buffer full: drop this subscriber's oldest event, then retry.
			// Only this subscriber loses events.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}

// Close closes every subscriber channel and marks the bus closed. Safe to
// call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

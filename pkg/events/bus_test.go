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
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe()

	bus.Publish(Event{Type: EventResearchStarted, Data: ResearchStartedData{Query: "quantum error correction", Mode: "deep"}})
	bus.Publish(Event{Type: EventPlanCreated, Data: PlanCreatedData{WorkerCount: 3, Topic: "quantum error correction"}})

	first := <-ch
	if first.Type != EventResearchStarted {
		t.Fatalf("first event type = %s, want %s", first.Type, EventResearchStarted)
	}
	data, ok := first.Data.(ResearchStartedData)
	if !ok {
		t.Fatalf("first event data has type %T", first.Data)
	}
	if data.Mode != "deep" {
		t.Errorf("mode = %q, want deep", data.Mode)
	}

	second := <-ch
	if second.Type != EventPlanCreated {
		t.Fatalf("second event type = %s, want %s", second.Type, EventPlanCreated)
	}
}

func TestSubscribeFiltersTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventToolCall, EventToolResult)

	bus.Publish(Event{Type: EventLLMChunk, Data: LLMChunkData{Chunk: "ignored"}})
	bus.Publish(Event{Type: EventToolCall, Data: ToolCallData{Tool: "search"}})
	bus.Publish(Event{Type: EventIterationStarted})
	bus.Publish(Event{Type: EventToolResult, Data: ToolResultData{Tool: "search", Success: true}})

	got := []EventType{(<-ch).Type, (<-ch).Type}
	want := []EventType{EventToolCall, EventToolResult}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d type = %s, want %s", i, got[i], want[i])
		}
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected extra event %s", e.Type)
	default:
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(Event{Type: EventQueryAnalyzed})

	if e := <-ch; e.Timestamp.IsZero() {
		t.Error("published event has zero timestamp")
	}
}

func TestPublishKeepsExplicitTimestamp(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := bus.Subscribe()
	bus.Publish(Event{Type: EventQueryAnalyzed, Timestamp: ts})

	if e := <-ch; !e.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, ts)
	}
}

func TestPublishDropsOldestForSlowSubscriberOnly(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	slow := bus.Subscribe()
	fast := bus.Subscribe()

	// Drain fast concurrently so it never fills.
	received := make(chan []EventType)
	go func() {
		var types []EventType
		for e := range fast {
			types = append(types, e.Type)
			if len(types) == 5 {
				break
			}
		}
		received <- types
	}()

	all := []EventType{
		EventResearchStarted,
		EventPlanCreated,
		EventWorkerStarted,
		EventWorkerComplete,
		EventResearchComplete,
	}
	for _, typ := range all {
		bus.Publish(Event{Type: typ})
	}

	fastGot := <-received
	if len(fastGot) != len(all) {
		t.Fatalf("fast subscriber got %d events, want %d", len(fastGot), len(all))
	}
	for i := range all {
		if fastGot[i] != all[i] {
			t.Errorf("fast event %d = %s, want %s", i, fastGot[i], all[i])
		}
	}

	// The slow subscriber's buffer held 2; the oldest three were dropped.
	if got := (<-slow).Type; got != EventWorkerComplete {
		t.Errorf("slow first event = %s, want %s", got, EventWorkerComplete)
	}
	if got := (<-slow).Type; got != EventResearchComplete {
		t.Errorf("slow second event = %s, want %s", got, EventResearchComplete)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	bus.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Type: EventLLMChunk, Data: LLMChunkData{Chunk: "x"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}

	// Publishing after removal must not panic or deliver.
	bus.Publish(Event{Type: EventResearchStarted})
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe(EventCostUpdated)

	bus.Close()
	bus.Close() // idempotent

	if _, open := <-a; open {
		t.Error("subscriber a still open after Close")
	}
	if _, open := <-b; open {
		t.Error("subscriber b still open after Close")
	}

	bus.Publish(Event{Type: EventResearchStarted}) // no-op

	if _, open := <-bus.Subscribe(); open {
		t.Error("Subscribe after Close returned an open channel")
	}
}

func TestNewBusDefaultsCapacity(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	ch := bus.Subscribe()
	for i := 0; i < DefaultBufferSize; i++ {
		bus.Publish(Event{Type: EventLLMChunk})
	}
	if got := len(ch); got != DefaultBufferSize {
		t.Errorf("buffered %d events, want %d", got, DefaultBufferSize)
	}
}

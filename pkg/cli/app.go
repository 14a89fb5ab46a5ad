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

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/kadirpekel/argus/pkg/config"
	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/orchestrator"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/store"
)

// App wires the event store, bus, orchestrator, and renderer behind the CLI
// verbs. One App serves both the one-shot commands and the interactive shell.
type App struct {
	cfg      *config.Config
	store    store.EventStore
	bus      *events.Bus
	orch     *orchestrator.Orchestrator
	renderer *Renderer
	out      io.Writer
}

// NewApp builds the full research stack from configuration.
func NewApp(cfg *config.Config, out io.Writer, verbose bool) (*App, error) {
	fileStore, err := store.NewFileEventStore(cfg.Store.Root)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	bus := events.NewBus(256)
	orch, err := orchestrator.New(fileStore, bus, cfg)
	if err != nil {
		bus.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		store:    fileStore,
		bus:      bus,
		orch:     orch,
		renderer: NewRenderer(out, verbose),
		out:      out,
	}, nil
}

// Close releases the bus. Safe to call once after all verbs finished.
func (a *App) Close() {
	a.bus.Close()
}

// Renderer exposes the display for callers that print outside the verbs.
func (a *App) Renderer() *Renderer {
	return a.renderer
}

// Research runs a new session, streaming progress until it ends, then prints
// the report. An empty mode uses the configured default.
func (a *App) Research(ctx context.Context, query, mode string) error {
	state, err := a.stream(func() (*research.ResearchState, error) {
		return a.orch.Run(ctx, query, mode)
	})
	if err != nil {
		return err
	}
	a.renderer.DisplayReport(state)
	return nil
}

// Resume continues a stored session. Completed sessions print their report
// without further work.
func (a *App) Resume(ctx context.Context, sessionID string) error {
	state, err := a.stream(func() (*research.ResearchState, error) {
		return a.orch.Resume(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	a.renderer.DisplayReport(state)
	return nil
}

// stream renders bus events for the duration of one orchestrator call.
func (a *App) stream(run func() (*research.ResearchState, error)) (*research.ResearchState, error) {
	sub := a.bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.renderer.Watch(sub)
	}()

	state, err := run()

	a.bus.Unsubscribe(sub)
	<-done
	return state, err
}

// List prints every stored session, oldest first. Ids sort chronologically
// because they start with a UTC timestamp.
func (a *App) List(ctx context.Context) error {
	sessions, err := a.loadAll(ctx)
	if err != nil {
		return err
	}
	a.renderer.DisplaySessionList(sessions)
	return nil
}

// Show prints one session's state; with full set the report body follows.
func (a *App) Show(ctx context.Context, sessionID string, full bool) error {
	state, err := a.orch.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	a.renderer.DisplaySessionDetail(state, full)
	return nil
}

// Snapshot forces a snapshot of a stored session.
func (a *App) Snapshot(ctx context.Context, sessionID string) error {
	if err := a.orch.TakeSnapshot(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "snapshot taken for %s\n", sessionID)
	return nil
}

// Watch follows the store for session changes until the context ends,
// reprinting changed sessions as they land.
func (a *App) Watch(ctx context.Context) error {
	watcher, err := store.NewSessionWatcher(store.SessionWatcherConfig{Root: a.cfg.Store.Root})
	if err != nil {
		return fmt.Errorf("watch sessions: %w", err)
	}
	changes, err := watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("watch sessions: %w", err)
	}
	defer func() { _ = watcher.Stop() }()

	if err := a.List(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "watching for changes (interrupt to stop)")

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Type == store.SessionError {
				fmt.Fprintf(a.out, "watch error: %v\n", change.Error)
				continue
			}
			if change.Type == store.SessionRemoved {
				fmt.Fprintf(a.out, "%s  removed\n", change.AggregateID)
				continue
			}
			state, err := a.orch.Load(ctx, change.AggregateID)
			if err != nil {
				// Session directory exists but its first event has not
				// landed yet; the next change will catch it.
				continue
			}
			a.renderer.DisplaySessionList([]*research.ResearchState{state})
		}
	}
}

// loadAll rebuilds every stored session, skipping unreadable ones.
func (a *App) loadAll(ctx context.Context) ([]*research.ResearchState, error) {
	ids, err := a.store.GetAllAggregateIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)

	sessions := make([]*research.ResearchState, 0, len(ids))
	for _, id := range ids {
		state, err := a.orch.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(a.out, "%s  (unreadable: %v)\n", id, err)
			continue
		}
		sessions = append(sessions, state)
	}
	return sessions, nil
}

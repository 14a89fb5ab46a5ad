// Package argus provides an event-sourced deep research assistant.
//
// Argus runs multi-agent research sessions: a planner decomposes a query
// into perspectives, parallel workers search and read the web, an analysis
// pass cross-validates the collected facts, and a synthesis pass writes a
// cited report. Every state change is an event in an append-only store, so
// sessions replay, resume, and snapshot deterministically.
//
// # Quick Start
//
// Install Argus:
//
//	go install github.com/kadirpekel/argus/cmd/argus@latest
//
// Set the required keys and research something:
//
//	export OPENROUTER_API_KEY=sk-or-...
//	export BRAVE_API_KEY=BSA...
//	argus research "how does the go scheduler work"
//
// Or start the interactive shell:
//
//	argus
//
// # Using as Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/kadirpekel/argus/pkg/config"
//	    "github.com/kadirpekel/argus/pkg/orchestrator"
//	    "github.com/kadirpekel/argus/pkg/store"
//	)
//
// # Key Features
//
//   - **Event Sourcing**: sessions are append-only event streams with
//     optimistic concurrency, snapshots, and deterministic replay
//   - **Two Modes**: fast parallel fan-out and deep supervisor-driven
//     diffusion research
//   - **Resumable Sessions**: interrupt at any point and resume from the
//     stored stream
//   - **Built-in Tools**: web search, page fetch, document parsing,
//     structured thinking
//   - **Report Vault**: completed reports land as markdown files with
//     numbered citations
//
// # Architecture
//
// Argus follows a command/event architecture:
//
//	CLI/REPL → Orchestrator → Research Aggregate → Event Store
//	                ↓
//	        Agents (planner, workers, analysis, synthesis)
//
// Commands validate against the aggregate, accepted events append to the
// store, and the terminal renders from an in-process event bus.
//
// # Alpha Status
//
// Argus is currently in alpha development. APIs may change, and some
// features are experimental. We welcome feedback and contributions!
//
// # License
//
// Apache-2.0 - See the source file headers for details.
package argus

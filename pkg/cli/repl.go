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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/kadirpekel/argus/pkg/research"
)

// REPL is the interactive research shell. Any input that is not a known verb
// runs as a research query in the configured mode.
type REPL struct {
	app *App
	rl  *readline.Instance
	out io.Writer
}

// NewREPL creates the shell around an App.
func NewREPL(app *App, out io.Writer) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            color.New(color.FgCyan).Sprint("argus> "),
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("research"),
			readline.PcItem("deep"),
			readline.PcItem("fast"),
			readline.PcItem("resume"),
			readline.PcItem("list"),
			readline.PcItem("watch"),
			readline.PcItem("show"),
			readline.PcItem("snapshot"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}
	return &REPL{app: app, rl: rl, out: out}, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".argus_history")
	}
	return filepath.Join(home, ".argus_history")
}

// Run reads and dispatches commands until exit or EOF.
func (r *REPL) Run(ctx context.Context) error {
	defer func() { _ = r.rl.Close() }()

	fmt.Fprintln(r.out, "Type a question to research it, or 'help' for commands.")

	for {
		line, err := r.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r.dispatch(ctx, line) {
			break
		}
	}

	fmt.Fprintln(r.out, "bye")
	return nil
}

// dispatch runs one command line, returning true to leave the shell.
func (r *REPL) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	verb, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch verb {
	case "exit", "quit":
		return true

	case "help":
		r.printHelp()

	case "list":
		r.report(r.app.List(ctx))

	case "watch":
		r.report(r.interruptible(ctx, r.app.Watch))

	case "show":
		if rest == "" {
			fmt.Fprintln(r.out, "usage: show <session-id> [full]")
			break
		}
		args := strings.Fields(rest)
		full := len(args) > 1 && args[1] == "full"
		r.report(r.app.Show(ctx, args[0], full))

	case "resume":
		if rest == "" {
			fmt.Fprintln(r.out, "usage: resume <session-id>")
			break
		}
		r.report(r.interruptible(ctx, func(runCtx context.Context) error {
			return r.app.Resume(runCtx, rest)
		}))

	case "snapshot":
		if rest == "" {
			fmt.Fprintln(r.out, "usage: snapshot <session-id>")
			break
		}
		r.report(r.app.Snapshot(ctx, rest))

	case "research":
		r.research(ctx, rest, "")

	case "fast":
		r.research(ctx, rest, research.ModeFast)

	case "deep":
		r.research(ctx, rest, research.ModeDeep)

	default:
		// The shell's whole point is asking questions.
		r.research(ctx, line, "")
	}
	return false
}

func (r *REPL) research(ctx context.Context, query, mode string) {
	if query == "" {
		fmt.Fprintln(r.out, "usage: research <query>")
		return
	}
	r.report(r.interruptible(ctx, func(runCtx context.Context) error {
		return r.app.Research(runCtx, query, mode)
	}))
}

// interruptible runs fn under a context that Ctrl-C cancels, so an interrupt
// ends the research (recording a terminal event) instead of the shell.
func (r *REPL) interruptible(ctx context.Context, fn func(context.Context) error) error {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := fn(runCtx)
	if runCtx.Err() != nil && ctx.Err() == nil {
		fmt.Fprintln(r.out, "interrupted")
		return nil
	}
	return err
}

func (r *REPL) report(err error) {
	if err != nil {
		color.New(color.FgRed).Fprintf(r.out, "error: %v\n", err)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Commands:
  research <query>   run a session in the configured mode
  fast <query>       run a single-pass session
  deep <query>       run a diffusion session
  resume <id>        continue a stored session
  list               list stored sessions
  watch              follow the store for changes
  show <id> [full]   print a session, optionally with the report body
  snapshot <id>      force a snapshot
  exit               leave the shell

Anything else runs as a research query.
`)
}

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

// Command argus is the research assistant CLI.
//
// Usage:
//
//	argus                            start the interactive shell
//	argus research "how does X work" run one research session
//	argus resume 20260101-120000-ab  resume a stored session
//	argus list --watch               list sessions, live
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/argus"
	"github.com/kadirpekel/argus/pkg/cli"
	"github.com/kadirpekel/argus/pkg/config"
	"github.com/kadirpekel/argus/pkg/logger"
	"github.com/kadirpekel/argus/pkg/observability"
)

// CLI defines the command-line interface.
type CLI struct {
	Research ResearchCmd `cmd:"" help:"Research a query and print the report."`
	Resume   ResumeCmd   `cmd:"" help:"Resume a stored research session."`
	List     ListCmd     `cmd:"" help:"List stored research sessions."`
	Show     ShowCmd     `cmd:"" help:"Show a stored session's state."`
	Snapshot SnapshotCmd `cmd:"" help:"Snapshot a session's current state."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Repl     ReplCmd     `cmd:"" default:"1" help:"Start the interactive shell."`

	Config  string `short:"c" help:"Path to config file." type:"path"`
	Verbose bool   `short:"v" help:"Stream tool calls, model output, and costs."`
}

// ResearchCmd runs a single research session to completion.
type ResearchCmd struct {
	Query []string `arg:"" help:"Research question."`
	Mode  string   `help:"Mode for this run (fast or deep); empty uses the configured default."`
}

func (c *ResearchCmd) Run(root *CLI) error {
	ctx, cancel := interruptContext()
	defer cancel()

	app, cleanup, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer cleanup()

	return app.Research(ctx, strings.Join(c.Query, " "), c.Mode)
}

// ResumeCmd drives a stored session forward from its last event.
type ResumeCmd struct {
	SessionID string `arg:"" help:"Session id to resume."`
}

func (c *ResumeCmd) Run(root *CLI) error {
	ctx, cancel := interruptContext()
	defer cancel()

	app, cleanup, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer cleanup()

	return app.Resume(ctx, c.SessionID)
}

// ListCmd lists stored sessions, optionally following store changes.
type ListCmd struct {
	Watch bool `help:"Keep watching the store and reprint on changes."`
}

func (c *ListCmd) Run(root *CLI) error {
	ctx, cancel := interruptContext()
	defer cancel()

	app, cleanup, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Watch {
		return app.Watch(ctx)
	}
	return app.List(ctx)
}

// ShowCmd prints one session's state.
type ShowCmd struct {
	SessionID string `arg:"" help:"Session id to show."`
	Full      bool   `help:"Include the full report body."`
}

func (c *ShowCmd) Run(root *CLI) error {
	ctx := context.Background()

	app, cleanup, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer cleanup()

	return app.Show(ctx, c.SessionID, c.Full)
}

// SnapshotCmd persists a snapshot of a session's current state.
type SnapshotCmd struct {
	SessionID string `arg:"" help:"Session id to snapshot."`
}

func (c *SnapshotCmd) Run(root *CLI) error {
	ctx := context.Background()

	app, cleanup, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer cleanup()

	return app.Snapshot(ctx, c.SessionID)
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := argus.GetVersion()
	if build, ok := debug.ReadBuildInfo(); ok {
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			info.Version = build.Main.Version
		}
	}
	fmt.Println(info.String())
	return nil
}

// ReplCmd starts the interactive shell. It is the default command.
type ReplCmd struct{}

func (c *ReplCmd) Run(root *CLI) error {
	// The shell manages interrupts per command; an outer trap would fight
	// readline's own SIGINT handling.
	ctx := context.Background()

	app, cleanup, err := setup(ctx, root)
	if err != nil {
		return err
	}
	defer cleanup()

	repl, err := cli.NewREPL(app, os.Stdout)
	if err != nil {
		return err
	}
	return repl.Run(ctx)
}

// setup loads configuration, wires logging and telemetry, and builds the
// application. The returned cleanup flushes telemetry and closes the app.
func setup(ctx context.Context, root *CLI) (*cli.App, func(), error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, nil, err
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, config.NewConfigError("logging", "level", err.Error())
	}

	output := os.Stderr
	var closers []func()
	if cfg.Logging.File != "" {
		file, closeFile, err := logger.OpenLogFile(cfg.Logging.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		closers = append(closers, closeFile)
	}
	logger.Init(level, output, cfg.Logging.Format)

	if cfg.Observability.Enabled {
		obs := observability.NewManager(observability.Config{
			Tracing: observability.TracerConfig{
				Enabled:      true,
				ExporterType: cfg.Observability.Exporter,
				EndpointURL:  cfg.Observability.Endpoint,
				TracePath:    cfg.Observability.TracePath,
				SamplingRate: cfg.Observability.SamplingRate,
				ServiceName:  cfg.Observability.ServiceName,
			},
			Metrics: observability.MetricsConfig{
				Enabled: cfg.Observability.MetricsPort > 0,
				Port:    cfg.Observability.MetricsPort,
			},
		})
		if err := obs.Initialize(ctx); err != nil {
			slog.Warn("Telemetry init failed, continuing without it", "error", err)
		} else {
			closers = append(closers, func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := obs.Shutdown(shutdownCtx); err != nil {
					slog.Warn("Telemetry shutdown failed", "error", err)
				}
			})
		}
	}

	verbose := root.Verbose || os.Getenv(config.EnvVerbose) == "true"
	app, err := cli.NewApp(cfg, os.Stdout, verbose)
	if err != nil {
		runClosers(closers)
		return nil, nil, err
	}
	closers = append(closers, app.Close)

	return app, func() { runClosers(closers) }, nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Interrupted, stopping")
		cancel()
	}()

	return ctx, cancel
}

// printBanner prints a colored ASCII banner using argus-green (#10b981)
func printBanner() {
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			// Not a terminal, skip banner
			return
		}
	} else {
		return
	}

	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"

	banner := `
 █████╗ ██████╗  ██████╗ ██╗   ██╗███████╗
██╔══██╗██╔══██╗██╔════╝ ██║   ██║██╔════╝
███████║██████╔╝██║  ███╗██║   ██║███████╗
██╔══██║██╔══██╗██║   ██║██║   ██║╚════██║
██║  ██║██║  ██║╚██████╔╝╚██████╔╝███████║
╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚══════╝
`
	fmt.Printf("%s%s%s\n", greenColor, banner, resetColor)
}

// interactive reports whether this invocation lands in the shell; only the
// shell gets the banner.
func interactive(args []string) bool {
	for _, arg := range args[1:] {
		switch arg {
		case "research", "resume", "list", "show", "snapshot", "version", "--help", "-h":
			return false
		}
	}
	return true
}

func main() {
	if interactive(os.Args) {
		printBanner()
	}

	root := CLI{}
	ctx := kong.Parse(&root,
		kong.Name("argus"),
		kong.Description("Argus - event-sourced research assistant"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&root); err != nil {
		fmt.Fprintf(os.Stderr, "argus: %v\n", err)
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

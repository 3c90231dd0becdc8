// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command storyverse drives the StoryVerse backend from the terminal:
// personalized previews, the library, and scripted AR sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/storyverse/internal/backend"
	"github.com/ManuGH/storyverse/internal/config"
	xglog "github.com/ManuGH/storyverse/internal/log"
	"github.com/ManuGH/storyverse/internal/version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

type globalFlags struct {
	configPath  string
	metricsAddr string
	mock        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("storyverse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	var g globalFlags
	fs.StringVar(&g.configPath, "config", "", "path to config file (YAML)")
	fs.StringVar(&g.metricsAddr, "metrics-addr", "", "serve /healthz, /readyz and /metrics on this address")
	fs.BoolVar(&g.mock, "mock", false, "run against an in-process mock backend")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	xglog.Configure(xglog.Config{Level: "warn", Output: stderr, Version: version.Version})

	var err error
	switch rest[0] {
	case "version":
		_, _ = fmt.Fprintln(stdout, version.String())
		return exitOK
	case "config":
		err = runConfigCLI(g, rest[1:], stdout)
	case "preview":
		err = withApp(ctx, g, stderr, func(ctx context.Context, a *app) error {
			return runPreview(ctx, a, rest[1:], stdout)
		})
	case "library":
		err = withApp(ctx, g, stderr, func(ctx context.Context, a *app) error {
			return runLibrary(ctx, a, rest[1:], stdout)
		})
	case "ar-sim":
		err = withApp(ctx, g, stderr, func(ctx context.Context, a *app) error {
			return runARSim(ctx, a, rest[1:], stdout)
		})
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n\n", rest[0])
		printUsage(stderr)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: storyverse [--config file] [--metrics-addr addr] [--mock] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  preview [-book id] [-locale tag] <child name>   request a personalized preview")
	_, _ = fmt.Fprintln(w, "  library [list|unlock <book>|viewed <book>]      show or change the library")
	_, _ = fmt.Fprintln(w, "  ar-sim [-book id] [-fallback d] <script>        replay AR events, e.g. found,video,done,lost,wait=11s")
	_, _ = fmt.Fprintln(w, "  config init [-f file] [--force]                 write the default configuration")
	_, _ = fmt.Fprintln(w, "  config show                                     print the effective configuration")
	_, _ = fmt.Fprintln(w, "  version                                         print build information")
}

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// loadConfig resolves the effective configuration for g.
func loadConfig(g globalFlags) (*config.Loader, config.AppConfig, error) {
	loader := config.NewLoader(strings.TrimSpace(g.configPath), version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, cfg, err
	}
	if g.metricsAddr != "" {
		cfg.Ops.MetricsAddr = g.metricsAddr
	}
	return loader, cfg, nil
}

// withApp builds the service graph, runs fn next to the ops server and tears
// everything down once fn returns.
func withApp(ctx context.Context, g globalFlags, stderr io.Writer, fn func(context.Context, *app) error) error {
	loader, cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	xglog.Configure(xglog.Config{Level: logLevel(cfg), Output: stderr, Version: version.Version})

	var mock *backend.MockServer
	if g.mock {
		mock = backend.NewMockServer()
		defer mock.Close()
		cfg.API.URL = mock.URL
	}

	a, err := newApp(ctx, cfg, loader)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	grp, gctx := errgroup.WithContext(ctx)
	cmdCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if a.ops != nil {
		grp.Go(func() error { return a.ops.Run(cmdCtx) })
	}
	grp.Go(func() error {
		defer cancel()
		return fn(cmdCtx, a)
	})
	return grp.Wait()
}

func logLevel(cfg config.AppConfig) string {
	if cfg.DebugMode {
		return "debug"
	}
	return cfg.LogLevel
}

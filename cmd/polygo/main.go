// polygo is a command-line client for the Polymarket CLOB and Gamma APIs.
//
// Architecture:
//
//	main.go               entry point: loads config, builds the logger, dispatches subcommands
//	commands.go           one function per subcommand
//	exchange/client.go    CLOB REST client (book, metadata, API keys, orders, cancels)
//	exchange/ws.go        WebSocket feeds (market data + user events) with auto-reconnect
//	gamma/gamma.go        Gamma market metadata
//	transport/            rate-limited, retrying, authenticated request executor
//	auth/, eip712/        L2 HMAC headers, L1 ClobAuth and order signatures
//	store/store.go        JSON file persistence for derived API credentials
//
// Usage:
//
//	polygo [-config path] [-no-color] <command> [flags] [args]
//
// Commands: ping, book, markets, watch, derive-key, sign-order, post-order,
// orders, cancel.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/logrusorgru/aurora"

	"polygo/internal/config"
)

const usage = `usage: polygo [-config path] [-no-color] <command> [flags] [args]

commands:
  ping                        measure CLOB round-trip latency
  book <token-id>             print the top of a token's order book
  markets [-limit n] [-slug s] list open Gamma markets
  watch <token-id>...         stream market-channel events
  derive-key [-create]        derive (or create) L2 API credentials and store them
  sign-order [flags]          build and sign a limit order, print it as JSON
  post-order [flags]          build, sign and post a limit order
  orders                      list open orders
  cancel [-all | -market id | order-id...]
                              cancel orders
`

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	au     aurora.Aurora
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("polygo", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cfgPath := fs.String("config", os.Getenv("POLY_CONFIG"), "path to a YAML config file")
	noColor := fs.Bool("no-color", false, "disable coloured output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return 1
	}

	// Set up logger
	level, _ := cfg.Logging.SlogLevel()
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	a := &app{
		cfg:    cfg,
		logger: slog.New(handler),
		au:     aurora.NewAurora(!*noColor),
		out:    os.Stdout,
	}
	if cfg.DryRun {
		a.logger.Warn("DRY-RUN MODE: no real orders will be placed")
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	commands := map[string]func(context.Context, []string) error{
		"ping":       a.ping,
		"book":       a.book,
		"markets":    a.markets,
		"watch":      a.watch,
		"derive-key": a.deriveKey,
		"sign-order": a.signOrder,
		"post-order": a.postOrder,
		"orders":     a.orders,
		"cancel":     a.cancel,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}

	if err := fn(ctx, rest); err != nil {
		if ctx.Err() != nil {
			a.logger.Info("interrupted", "command", cmd)
			return 130
		}
		a.logger.Error("command failed", "command", cmd, "error", err)
		fmt.Fprintln(os.Stderr, a.au.Red(err.Error()))
		return 1
	}
	return 0
}

// Command zerobyte counts the zero bits of a file. Any number of instances
// may be started on the same file; they split the work through byte-range
// locks and a shared aggregate store, and each prints the same total once
// all of them are done.
//
// Usage:
//
//	zerobyte [flags] <path>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"zerobyte/internal/aggregate"
	"zerobyte/internal/config"
	"zerobyte/internal/metrics"
	"zerobyte/internal/metrics/datadog"
	"zerobyte/internal/metrics/prompush"
	"zerobyte/internal/runner"

	// register every store backend; -store picks one at runtime.
	_ "zerobyte/internal/aggregate/all"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 255
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process globals.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("zerobyte", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: zerobyte [flags] <path>")
		fs.PrintDefaults()
	}
	cfg, err := config.LoadFromArgs(fs, getenv, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.Error())
	}
	if config.HasErrors(issues) {
		fs.Usage()
		return exitUsage
	}

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger()

	flush := setupMetrics(cfg, log)
	defer flush()

	store, err := aggregate.Open(ctx, aggregate.Config{Kind: cfg.StoreKind, DSN: cfg.DSN, Logger: log})
	if err != nil {
		log.Error().Err(err).Str("store", cfg.StoreKind).Msg("open aggregate store")
		return exitRuntime
	}
	defer store.Close()

	if cfg.Reset {
		return reset(ctx, store, cfg.Path, stdout, log)
	}

	fmt.Fprintln(stdout, "Processing file...")
	res, err := runner.Run(ctx, store, runner.Config{
		Path:      cfg.Path,
		ChunkSize: cfg.ChunkSize,
		Barrier:   cfg.BarrierOptions(),
		Logger:    log,
	})
	if err != nil {
		log.Error().Err(err).Msg("count failed")
		return exitRuntime
	}

	fmt.Fprintf(stdout, "Count of zero bit: %d\n", res.TotalZeroBits)
	fmt.Fprintf(stdout, "Time: %d ms\n", res.Elapsed.Milliseconds())
	if res.Degraded {
		fmt.Fprintln(stderr, "warning: an instance dropped out before finishing; the count may be incomplete")
	}
	return exitOK
}

func reset(ctx context.Context, store aggregate.Store, path string, stdout io.Writer, log zerolog.Logger) int {
	key, err := runner.CanonicalPath(path)
	if err != nil {
		log.Error().Err(err).Msg("resolve path")
		return exitRuntime
	}
	rec, err := aggregate.Reset(ctx, store, key)
	if err != nil {
		log.Error().Err(err).Str("path", key).Msg("reset")
		return exitRuntime
	}
	fmt.Fprintf(stdout, "Reset %s (generation %d)\n", key, rec.Generation)
	return exitOK
}

// setupMetrics installs the configured backend and returns the flush to run
// at exit. A backend that fails to initialize leaves metrics disabled.
func setupMetrics(cfg *config.Config, log zerolog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.MetricsBackend {
	case "pushgateway":
		host, _ := os.Hostname()
		instance := fmt.Sprintf("%s-%d", host, os.Getpid())
		b, err = prompush.NewBackend(cfg.MetricsJob, instance, cfg.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.DogStatsdAddr,
			Namespace:  "zerobyte.",
			GlobalTags: []string{"job:" + cfg.MetricsJob},
		})
	default:
		log.Debug().Str("backend", cfg.MetricsBackend).Msg("metrics disabled")
		return func() {}
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.MetricsBackend).Msg("metrics init failed; using nop")
		return func() {}
	}
	log.Debug().Str("backend", cfg.MetricsBackend).Msg("metrics enabled")
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush")
		}
	}
}

// Package config centralizes zerobyte configuration. Every tunable is a
// command-line flag whose default is seeded from an environment variable,
// so `-help` lists all knobs and deployments can configure instances
// without touching their command lines.
//
// Typical usage:
//
//	cfg, err := config.Load() // reads os.Args and the process environment
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"-chunk-size=4", "file.bin"})
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"zerobyte/internal/aggregate"
	"zerobyte/internal/barrier"
)

// Config holds the process configuration derived from flags, environment
// variables and the positional arguments.
type Config struct {
	// Args are the positional arguments; exactly one (the file) is expected.
	Args []string
	Path string

	ChunkSize int64 // bytes per lockable range; 0 picks a default from the file size

	// Store selects the shared aggregate backend.
	StoreKind string
	DSN       string // empty selects the backend default (sqlite: a file in the temp dir)

	// Barrier timing.
	PollInterval      time.Duration
	LeaseTTL          time.Duration
	HeartbeatInterval time.Duration

	// Metrics.
	MetricsBackend string // none, pushgateway, datadog
	PushgatewayURL string
	MetricsJob     string
	DogStatsdAddr  string

	Reset   bool // clear the record for Path and exit
	Verbose bool
}

// LoadFromArgs defines flags on fs, seeds each default from getenv and
// parses args.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit CLI flags (in args) override the seeded defaults.
//
// Unparseable environment values fall back to the built-in default; flag
// parse errors are returned.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := &Config{}

	envOr := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	int64EnvOr := func(k string, d int64) int64 {
		if v := getenv(k); v != "" {
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return i
			}
		}
		return d
	}
	durEnvOr := func(k string, d time.Duration) time.Duration {
		if v := getenv(k); v != "" {
			if dur, err := time.ParseDuration(v); err == nil {
				return dur
			}
		}
		return d
	}
	boolEnvOr := func(k string, d bool) bool {
		switch strings.ToLower(getenv(k)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
		return d
	}

	fs.Int64Var(&cfg.ChunkSize, "chunk-size", int64EnvOr("ZEROBYTE_CHUNK_SIZE", 0), "Bytes per lockable range (0 = 64 MiB or the file size if smaller).")

	fs.StringVar(&cfg.StoreKind, "store", envOr("ZEROBYTE_STORE", aggregate.DefaultKind), "Aggregate store: sqlite, postgres, mysql or mssql.")
	fs.StringVar(&cfg.DSN, "dsn", getenv("ZEROBYTE_DSN"), "Store DSN (sqlite: database file, default in the temp dir).")

	fs.DurationVar(&cfg.PollInterval, "poll", durEnvOr("ZEROBYTE_POLL", barrier.DefaultPollInterval), "Barrier polling interval.")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", durEnvOr("ZEROBYTE_LEASE_TTL", barrier.DefaultLeaseTTL), "How long a silent instance keeps its place in the barrier.")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", durEnvOr("ZEROBYTE_HEARTBEAT", barrier.DefaultLeaseTTL/3), "Lease refresh interval while scanning.")

	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", envOr("METRICS_BACKEND", "none"), "Metrics backend: none, pushgateway or datadog.")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", getenv("PUSHGATEWAY_URL"), "Prometheus Pushgateway base URL.")
	fs.StringVar(&cfg.MetricsJob, "metrics-job", envOr("METRICS_JOB", "zerobyte"), "Job name used when pushing metrics.")
	fs.StringVar(&cfg.DogStatsdAddr, "dogstatsd-addr", getenv("DOGSTATSD_ADDR"), "DogStatsD address, e.g. 127.0.0.1:8125.")

	fs.BoolVar(&cfg.Reset, "reset", false, "Clear the shared record for the file (after a crash) and exit.")
	fs.BoolVar(&cfg.Verbose, "v", boolEnvOr("ZEROBYTE_VERBOSE", false), "Debug logging.")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Args = fs.Args()
	if len(cfg.Args) > 0 {
		cfg.Path = cfg.Args[0]
	}
	return cfg, nil
}

// Load is the production entry point: the process flag set, os.Getenv and
// os.Args[1:].
func Load() (*Config, error) {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

// BarrierOptions returns the barrier timing from cfg.
func (c *Config) BarrierOptions() barrier.Options {
	return barrier.Options{
		PollInterval:      c.PollInterval,
		LeaseTTL:          c.LeaseTTL,
		HeartbeatInterval: c.HeartbeatInterval,
	}
}

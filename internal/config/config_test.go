package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zerobyte/internal/barrier"

	_ "zerobyte/internal/aggregate/all"
)

func load(t *testing.T, env map[string]string, args ...string) *Config {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := LoadFromArgs(fs, func(k string) string { return env[k] }, args)
	if err != nil {
		t.Fatalf("LoadFromArgs(%v) error = %v", args, err)
	}
	return cfg
}

func tempFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(p, []byte{0xFF}, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFromArgs_Defaults(t *testing.T) {
	cfg := load(t, nil, "file.bin")
	if cfg.Path != "file.bin" {
		t.Errorf("Path = %q, want file.bin", cfg.Path)
	}
	if cfg.ChunkSize != 0 {
		t.Errorf("ChunkSize = %d, want 0", cfg.ChunkSize)
	}
	if cfg.StoreKind != "sqlite" || cfg.DSN != "" {
		t.Errorf("store = %q %q, want sqlite with empty DSN", cfg.StoreKind, cfg.DSN)
	}
	if cfg.PollInterval != barrier.DefaultPollInterval || cfg.LeaseTTL != barrier.DefaultLeaseTTL {
		t.Errorf("timing = %s/%s", cfg.PollInterval, cfg.LeaseTTL)
	}
	if cfg.HeartbeatInterval != barrier.DefaultLeaseTTL/3 {
		t.Errorf("HeartbeatInterval = %s", cfg.HeartbeatInterval)
	}
	if cfg.MetricsBackend != "none" || cfg.MetricsJob != "zerobyte" {
		t.Errorf("metrics = %q job %q", cfg.MetricsBackend, cfg.MetricsJob)
	}
	if cfg.Reset || cfg.Verbose {
		t.Errorf("Reset/Verbose should default to false")
	}
}

func TestLoadFromArgs_EnvAndFlagPrecedence(t *testing.T) {
	env := map[string]string{
		"ZEROBYTE_CHUNK_SIZE": "4096",
		"ZEROBYTE_STORE":      "postgres",
		"ZEROBYTE_DSN":        "postgres://localhost/zb",
		"ZEROBYTE_POLL":       "5ms",
		"ZEROBYTE_LEASE_TTL":  "1m",
		"ZEROBYTE_HEARTBEAT":  "not-a-duration",
		"METRICS_BACKEND":     "pushgateway",
		"PUSHGATEWAY_URL":     "http://gw:9091",
		"ZEROBYTE_VERBOSE":    "yes",
	}

	cfg := load(t, env, "-chunk-size=8", "-dsn", "postgres://other/zb", "f")
	if cfg.ChunkSize != 8 {
		t.Errorf("flag should override env: ChunkSize = %d", cfg.ChunkSize)
	}
	if cfg.DSN != "postgres://other/zb" {
		t.Errorf("DSN = %q", cfg.DSN)
	}
	if cfg.StoreKind != "postgres" {
		t.Errorf("StoreKind = %q, want env value", cfg.StoreKind)
	}
	if cfg.PollInterval != 5*time.Millisecond || cfg.LeaseTTL != time.Minute {
		t.Errorf("timing = %s/%s", cfg.PollInterval, cfg.LeaseTTL)
	}
	if cfg.HeartbeatInterval != barrier.DefaultLeaseTTL/3 {
		t.Errorf("bad env duration should fall back: %s", cfg.HeartbeatInterval)
	}
	if cfg.MetricsBackend != "pushgateway" || cfg.PushgatewayURL != "http://gw:9091" {
		t.Errorf("metrics = %q %q", cfg.MetricsBackend, cfg.PushgatewayURL)
	}
	if !cfg.Verbose {
		t.Error("Verbose should come from ZEROBYTE_VERBOSE")
	}
}

func TestLoadFromArgs_BadFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := LoadFromArgs(fs, func(string) string { return "" }, []string{"-chunk-size=abc", "f"}); err == nil {
		t.Fatal("expected parse error for non-numeric chunk size")
	}
}

func TestBarrierOptions(t *testing.T) {
	cfg := load(t, nil, "-poll=2ms", "-lease-ttl=9s", "-heartbeat=3s", "f")
	o := cfg.BarrierOptions()
	if o.PollInterval != 2*time.Millisecond || o.LeaseTTL != 9*time.Second || o.HeartbeatInterval != 3*time.Second {
		t.Fatalf("BarrierOptions = %+v", o)
	}
}

func TestValidate(t *testing.T) {
	file := tempFile(t)
	dir := t.TempDir()

	cases := []struct {
		name      string
		args      []string
		wantPath  string // first error path; empty means no errors
		wantWarns int
	}{
		{"ok", []string{file}, "", 0},
		{"missing path", nil, "path", 0},
		{"two paths", []string{file, file}, "path", 0},
		{"nonexistent", []string{filepath.Join(dir, "nope")}, "path", 0},
		{"directory", []string{dir}, "path", 0},
		{"negative chunk", []string{"-chunk-size=-1", file}, "chunk-size", 0},
		{"chunk above 31 bits", []string{"-chunk-size=2147483648", file}, "chunk-size", 0},
		{"unknown store", []string{"-store=redis", file}, "store.kind", 0},
		{"postgres without dsn", []string{"-store=postgres", file}, "store.dsn", 0},
		{"postgres with dsn", []string{"-store=postgres", "-dsn=postgres://h/db", file}, "", 0},
		{"zero poll", []string{"-poll=0", file}, "barrier.poll", 0},
		{"zero ttl", []string{"-lease-ttl=0", file}, "barrier.lease-ttl", 0},
		{"negative heartbeat", []string{"-heartbeat=-1s", file}, "barrier.heartbeat", 0},
		{"slow heartbeat warns", []string{"-heartbeat=20s", "-lease-ttl=30s", file}, "", 1},
		{"pushgateway without url", []string{"-metrics-backend=pushgateway", file}, "metrics.pushgateway-url", 0},
		{"datadog without addr", []string{"-metrics-backend=datadog", file}, "metrics.dogstatsd-addr", 0},
		{"datadog with addr", []string{"-metrics-backend=datadog", "-dogstatsd-addr=127.0.0.1:8125", file}, "", 0},
		{"unknown metrics", []string{"-metrics-backend=statsd", file}, "metrics.backend", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issues := Validate(load(t, nil, tc.args...))

			var firstErr string
			warns := 0
			for _, iss := range issues {
				switch iss.Severity {
				case SeverityError:
					if firstErr == "" {
						firstErr = iss.Path
					}
				case SeverityWarning:
					warns++
				}
			}
			if firstErr != tc.wantPath {
				t.Errorf("first error path = %q, want %q (issues: %v)", firstErr, tc.wantPath, issues)
			}
			if warns != tc.wantWarns {
				t.Errorf("warnings = %d, want %d (issues: %v)", warns, tc.wantWarns, issues)
			}
			if HasErrors(issues) != (tc.wantPath != "") {
				t.Errorf("HasErrors = %v", HasErrors(issues))
			}
		})
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "store.dsn", Message: "required"}
	if got := iss.Error(); !strings.Contains(got, "error at store.dsn: required") {
		t.Fatalf("Error() = %q", got)
	}
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type cli struct {
	env    map[string]string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	return &cli{env: map[string]string{
		"ZEROBYTE_DSN": filepath.Join(t.TempDir(), "agg.db"),
	}}
}

func (c *cli) run(t *testing.T, args ...string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.stdout.Reset()
	c.stderr.Reset()
	return run(ctx, args, func(k string) string { return c.env[k] }, &c.stdout, &c.stderr)
}

func writeInput(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRun_PrintsCount(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"all ones", bytes.Repeat([]byte{0xFF}, 16), "Count of zero bit: 0\n"},
		{"all zeros", make([]byte, 16), "Count of zero bit: 128\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newCLI(t)
			path := writeInput(t, tc.data)
			if code := c.run(t, path); code != exitOK {
				t.Fatalf("exit = %d, stderr:\n%s", code, c.stderr.String())
			}
			out := c.stdout.String()
			if !strings.HasPrefix(out, "Processing file...\n") {
				t.Errorf("stdout missing notice:\n%s", out)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("stdout = %q, want %q", out, tc.want)
			}
			if !strings.Contains(out, "Time: ") || !strings.HasSuffix(out, " ms\n") {
				t.Errorf("stdout missing timing line:\n%s", out)
			}
		})
	}
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"no argument", nil},
		{"nonexistent", []string{filepath.Join(dir, "missing.bin")}},
		{"directory", []string{dir}},
		{"bad flag", []string{"-chunk-size=x", "f"}},
		{"unknown store", []string{"-store=nosuch", filepath.Join(dir, "missing.bin")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newCLI(t)
			if code := c.run(t, tc.args...); code != exitUsage {
				t.Fatalf("exit = %d, want %d", code, exitUsage)
			}
			if c.stdout.Len() != 0 {
				t.Errorf("usage error wrote to stdout: %q", c.stdout.String())
			}
			if c.stderr.Len() == 0 {
				t.Error("usage error printed nothing on stderr")
			}
			if _, err := os.Stat(c.env["ZEROBYTE_DSN"]); !os.IsNotExist(err) {
				t.Errorf("usage error created the store: %v", err)
			}
		})
	}
}

func TestRun_Reset(t *testing.T) {
	c := newCLI(t)
	path := writeInput(t, []byte{0x0F})
	if code := c.run(t, path); code != exitOK {
		t.Fatalf("first run exit = %d, stderr:\n%s", code, c.stderr.String())
	}
	if code := c.run(t, "-reset", path); code != exitOK {
		t.Fatalf("reset exit = %d, stderr:\n%s", code, c.stderr.String())
	}
	if !strings.Contains(c.stdout.String(), "generation 1") {
		t.Errorf("reset output = %q, want generation 1 preserved", c.stdout.String())
	}
	if code := c.run(t, path); code != exitOK {
		t.Fatalf("run after reset exit = %d", code)
	}
	if !strings.Contains(c.stdout.String(), "Count of zero bit: 4\n") {
		t.Errorf("stdout = %q", c.stdout.String())
	}
}

func TestRun_Help(t *testing.T) {
	c := newCLI(t)
	if code := c.run(t, "-h"); code != exitOK {
		t.Fatalf("exit = %d, want %d", code, exitOK)
	}
	if !strings.Contains(c.stderr.String(), "-chunk-size") {
		t.Errorf("help output missing flags:\n%s", c.stderr.String())
	}
}

package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"zerobyte/internal/aggregate"
	"zerobyte/internal/partition"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to the user but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path names the offending setting
// ("path", "store.dsn", "barrier.heartbeat", ...).
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}

// Validate checks cfg, including that the target exists and is a regular
// file. It does not mutate cfg.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	issues = append(issues, validateTarget(cfg)...)
	issues = append(issues, validateStore(cfg)...)
	issues = append(issues, validateBarrier(cfg)...)
	issues = append(issues, validateMetrics(cfg)...)
	return issues
}

func errIssue(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)}
}

func validateTarget(cfg *Config) []Issue {
	var issues []Issue
	switch {
	case len(cfg.Args) == 0 || strings.TrimSpace(cfg.Path) == "":
		return append(issues, errIssue("path", "missing file path argument"))
	case len(cfg.Args) > 1:
		issues = append(issues, errIssue("path", "expected exactly one file, got %d arguments", len(cfg.Args)))
	}
	fi, err := os.Stat(cfg.Path)
	switch {
	case os.IsNotExist(err):
		issues = append(issues, errIssue("path", "%s does not exist", cfg.Path))
	case err != nil:
		issues = append(issues, errIssue("path", "%v", err))
	case fi.IsDir():
		issues = append(issues, errIssue("path", "%s is a directory", cfg.Path))
	case !fi.Mode().IsRegular():
		issues = append(issues, errIssue("path", "%s is not a regular file", cfg.Path))
	}

	if cfg.ChunkSize < 0 || cfg.ChunkSize > partition.MaxChunkSize {
		issues = append(issues, errIssue("chunk-size", "must be between 1 and %d bytes (0 for default), got %d", partition.MaxChunkSize, cfg.ChunkSize))
	}
	return issues
}

func validateStore(cfg *Config) []Issue {
	var issues []Issue
	kinds := aggregate.Kinds()
	if !slices.Contains(kinds, cfg.StoreKind) {
		issues = append(issues, errIssue("store.kind", "unknown store %q (available: %s)", cfg.StoreKind, strings.Join(kinds, ", ")))
	}
	if cfg.StoreKind != aggregate.DefaultKind && strings.TrimSpace(cfg.DSN) == "" {
		issues = append(issues, errIssue("store.dsn", "store %q requires -dsn", cfg.StoreKind))
	}
	return issues
}

func validateBarrier(cfg *Config) []Issue {
	var issues []Issue
	if cfg.PollInterval <= 0 {
		issues = append(issues, errIssue("barrier.poll", "must be positive, got %s", cfg.PollInterval))
	}
	if cfg.LeaseTTL <= 0 {
		issues = append(issues, errIssue("barrier.lease-ttl", "must be positive, got %s", cfg.LeaseTTL))
	}
	if cfg.HeartbeatInterval <= 0 {
		issues = append(issues, errIssue("barrier.heartbeat", "must be positive, got %s", cfg.HeartbeatInterval))
	} else if cfg.LeaseTTL > 0 && cfg.HeartbeatInterval*2 > cfg.LeaseTTL {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "barrier.heartbeat",
			Message:  fmt.Sprintf("heartbeat %s is more than half the lease TTL %s; a slow store may let the lease expire", cfg.HeartbeatInterval, cfg.LeaseTTL),
		})
	}
	return issues
}

func validateMetrics(cfg *Config) []Issue {
	switch cfg.MetricsBackend {
	case "", "none":
		return nil
	case "pushgateway":
		if cfg.PushgatewayURL == "" {
			return []Issue{errIssue("metrics.pushgateway-url", "required when metrics backend is pushgateway")}
		}
	case "datadog":
		if cfg.DogStatsdAddr == "" {
			return []Issue{errIssue("metrics.dogstatsd-addr", "required when metrics backend is datadog")}
		}
	default:
		return []Issue{errIssue("metrics.backend", "unknown metrics backend %q (none, pushgateway, datadog)", cfg.MetricsBackend)}
	}
	return nil
}

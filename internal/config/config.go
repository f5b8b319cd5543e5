// Package config holds the runtime-truth policy knobs and file layout.
//
// TTLs and freshness windows are tuned empirically; their exact values
// are policy, not correctness constants. Only the existence of TTL-based
// expiry and a freshness-gated fallback order is load-bearing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy carries the tunable thresholds for collection, materialization
// and fallback selection. Zero values are replaced by defaults on Load.
type Policy struct {
	// CronStaleTTLMs demotes a quiet cron run to terminal. Cron jobs
	// heartbeat on every collector pass, so this can be tighter than
	// the subagent TTL.
	CronStaleTTLMs int64 `yaml:"cronStaleTtlMs"`

	// SubagentStaleTTLMs demotes a quiet subagent run to terminal.
	SubagentStaleTTLMs int64 `yaml:"subagentStaleTtlMs"`

	// MaterializedMaxAgeMs is the freshness window for accepting the
	// materialized snapshot before falling back to live reconciliation.
	MaterializedMaxAgeMs int64 `yaml:"materializedMaxAgeMs"`

	// HeartbeatBucketMs coarsens heartbeat event identity so repeated
	// polls do not flood the journal.
	HeartbeatBucketMs int64 `yaml:"heartbeatBucketMs"`

	// RecencyWindowMs bounds how long terminal records stay in the
	// materialized snapshot before pruning.
	RecencyWindowMs int64 `yaml:"recencyWindowMs"`

	// SourceTimeout bounds each external source read so one slow source
	// cannot stall a collection pass.
	SourceTimeout time.Duration `yaml:"sourceTimeout"`

	// Main-session interactive detection windows.
	MainSessionMaxAgeMs            int64 `yaml:"mainSessionMaxAgeMs"`
	MainSessionPendingCallMaxAgeMs int64 `yaml:"mainSessionPendingCallMaxAgeMs"`
	MainSessionLockStaleMs         int64 `yaml:"mainSessionLockStaleMs"`

	// ExcludedJobNameSubstrings hides runs whose job name matches; used
	// to keep the status-publish job itself out of the runtime view.
	ExcludedJobNameSubstrings []string `yaml:"excludedJobNameSubstrings"`
}

// Paths names every file this subsystem reads or owns.
type Paths struct {
	JobsFile     string `yaml:"jobsFile"`
	SessionsFile string `yaml:"sessionsFile"`
	RunsDir      string `yaml:"runsDir"`
	SubagentFile string `yaml:"subagentFile"`
	JournalFile  string `yaml:"journalFile"`
	IndexFile    string `yaml:"indexFile"`
	StateFile    string `yaml:"stateFile"`
}

// Config is the on-disk configuration document.
type Config struct {
	Policy Policy `yaml:"policy"`
	Paths  Paths  `yaml:"paths"`
}

// DefaultPolicy returns the tuned production defaults.
func DefaultPolicy() Policy {
	return Policy{
		CronStaleTTLMs:                 10 * 60 * 1000,
		SubagentStaleTTLMs:             10 * 60 * 1000,
		MaterializedMaxAgeMs:           90 * 1000,
		HeartbeatBucketMs:              60 * 1000,
		RecencyWindowMs:                60 * 60 * 1000,
		SourceTimeout:                  5 * time.Second,
		MainSessionMaxAgeMs:            2 * 60 * 1000,
		MainSessionPendingCallMaxAgeMs: 10 * 60 * 1000,
		MainSessionLockStaleMs:         30 * 60 * 1000,
		ExcludedJobNameSubstrings:      []string{"control room status publish"},
	}
}

// DefaultPaths lays out the standard file locations under root.
func DefaultPaths(root string) Paths {
	return Paths{
		JobsFile:     filepath.Join(root, "cron", "jobs.json"),
		SessionsFile: filepath.Join(root, "agents", "main", "sessions", "sessions.json"),
		RunsDir:      filepath.Join(root, "cron", "runs"),
		SubagentFile: filepath.Join(root, "subagents", "runs.json"),
		JournalFile:  filepath.Join(root, "status", "runtime-events.jsonl"),
		IndexFile:    filepath.Join(root, "status", "runtime-index.db"),
		StateFile:    filepath.Join(root, "status", "runtime-state.json"),
	}
}

// Default returns the full default configuration rooted at root.
func Default(root string) Config {
	return Config{Policy: DefaultPolicy(), Paths: DefaultPaths(root)}
}

// Load reads a YAML config file and fills unset fields from the
// defaults rooted at root. A missing file returns pure defaults.
func Load(path, root string) (Config, error) {
	cfg := Default(root)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Policy = mergePolicy(cfg.Policy, overlay.Policy)
	cfg.Paths = mergePaths(cfg.Paths, overlay.Paths)
	if err := cfg.Policy.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// StaleTTLMs returns the per-lane orphan TTL.
func (p Policy) StaleTTLMs(activityType string) int64 {
	if activityType == "subagent" {
		return p.SubagentStaleTTLMs
	}
	return p.CronStaleTTLMs
}

// Validate rejects thresholds that would disable expiry entirely.
func (p Policy) Validate() error {
	if p.CronStaleTTLMs <= 0 {
		return fmt.Errorf("cronStaleTtlMs must be positive, got %d", p.CronStaleTTLMs)
	}
	if p.SubagentStaleTTLMs <= 0 {
		return fmt.Errorf("subagentStaleTtlMs must be positive, got %d", p.SubagentStaleTTLMs)
	}
	if p.MaterializedMaxAgeMs <= 0 {
		return fmt.Errorf("materializedMaxAgeMs must be positive, got %d", p.MaterializedMaxAgeMs)
	}
	if p.RecencyWindowMs < 0 {
		return fmt.Errorf("recencyWindowMs must not be negative, got %d", p.RecencyWindowMs)
	}
	return nil
}

func mergePolicy(base, overlay Policy) Policy {
	out := base
	if overlay.CronStaleTTLMs != 0 {
		out.CronStaleTTLMs = overlay.CronStaleTTLMs
	}
	if overlay.SubagentStaleTTLMs != 0 {
		out.SubagentStaleTTLMs = overlay.SubagentStaleTTLMs
	}
	if overlay.MaterializedMaxAgeMs != 0 {
		out.MaterializedMaxAgeMs = overlay.MaterializedMaxAgeMs
	}
	if overlay.HeartbeatBucketMs != 0 {
		out.HeartbeatBucketMs = overlay.HeartbeatBucketMs
	}
	if overlay.RecencyWindowMs != 0 {
		out.RecencyWindowMs = overlay.RecencyWindowMs
	}
	if overlay.SourceTimeout != 0 {
		out.SourceTimeout = overlay.SourceTimeout
	}
	if overlay.MainSessionMaxAgeMs != 0 {
		out.MainSessionMaxAgeMs = overlay.MainSessionMaxAgeMs
	}
	if overlay.MainSessionPendingCallMaxAgeMs != 0 {
		out.MainSessionPendingCallMaxAgeMs = overlay.MainSessionPendingCallMaxAgeMs
	}
	if overlay.MainSessionLockStaleMs != 0 {
		out.MainSessionLockStaleMs = overlay.MainSessionLockStaleMs
	}
	if overlay.ExcludedJobNameSubstrings != nil {
		out.ExcludedJobNameSubstrings = overlay.ExcludedJobNameSubstrings
	}
	return out
}

func mergePaths(base, overlay Paths) Paths {
	out := base
	if overlay.JobsFile != "" {
		out.JobsFile = overlay.JobsFile
	}
	if overlay.SessionsFile != "" {
		out.SessionsFile = overlay.SessionsFile
	}
	if overlay.RunsDir != "" {
		out.RunsDir = overlay.RunsDir
	}
	if overlay.SubagentFile != "" {
		out.SubagentFile = overlay.SubagentFile
	}
	if overlay.JournalFile != "" {
		out.JournalFile = overlay.JournalFile
	}
	if overlay.IndexFile != "" {
		out.IndexFile = overlay.IndexFile
	}
	if overlay.StateFile != "" {
		out.StateFile = overlay.StateFile
	}
	return out
}

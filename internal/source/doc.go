// Package source reads the raw external signals that feed runtime
// truth: the cron run-completion log, the subagent registry, and the
// session store, plus the jobs file for display metadata.
//
// Each reader is isolated behind the Source interface and returns
// normalized Observations, so the collector's event derivation stays
// source-agnostic and one malformed source never blocks the others.
package source

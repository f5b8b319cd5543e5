// Package runstate owns the derived liveness model: per-run records
// with an explicit running/terminal state machine, and the materialized
// snapshot that persists them.
//
// All transition rules live here, in Apply and ExpireStale, so terminal
// dominance and orphan expiry are enforced in exactly one place. Every
// other consumer treats records and snapshots as read-only values.
package runstate

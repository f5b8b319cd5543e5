// Package journal implements the append-only runtime event log.
//
// The journal itself is a newline-delimited JSON file: one complete
// event per line, written with a single write syscall so a concurrent
// reader never observes a torn record as anything but an ignorable
// trailing fragment. A SQLite side database indexes seen event ids for
// O(1) duplicate detection and stores per-source collector watermarks;
// losing the index is recoverable by rescanning the journal.
package journal

// Package synctoken persists the incremental sync cursor of each source
// calendar between invocations.
//
// A missing token means the next reconciliation must be a full resync.
// The store has no locking of its own; callers hold the single-writer lock.
package synctoken

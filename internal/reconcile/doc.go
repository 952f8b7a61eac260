// Package reconcile implements the incremental sync engine that keeps the
// public mirror calendar in step with a private source calendar.
//
// A cycle lists the source calendar from its stored sync token (or, without
// one, from a fixed lookback), page by page, and applies every change to the
// mirror by deleting the placeholders for that event and recreating them. The
// new sync token is stored only after the last page, so an aborted cycle is
// replayed in full by the next one. A token rejected by the server triggers a
// single full resync. Whole cycles are serialized by a single-writer lock.
package reconcile

// Package properties provides a small durable key-value store for string
// properties that must survive between invocations, such as sync tokens.
//
// Every Store is scoped: keys written through one scope are invisible to
// another, so several source accounts can share one database.
//
// Three backends are available:
//   - memory: process lifetime only, used by tests and dry runs
//   - sqlite: a local database file (default)
//   - valkey: a shared Valkey/Redis server, for deployments without local disk
package properties
